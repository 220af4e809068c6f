package core

import (
	"errors"
	"sync"
)

// CommandHandler handles one command. It decodes its own arguments from the
// front of data and must leave data positioned after them.
type CommandHandler func(data *[]byte) error

// Command is an entry of the device command table. Responses have a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "epoch=%u"
	Handler CommandHandler
}

var ErrUnknownCommand = errors.New("unknown command ID")

// CommandRegistry maps wire IDs to handlers. IDs are fixed by the protocol
// package, so registration order does not matter.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds or replaces the command with the given ID
func (r *CommandRegistry) Register(id uint16, name, format string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.commands[id]; ok {
		delete(r.nameToID, old.Name)
	}
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup returns the ID registered under name
func (r *CommandRegistry) Lookup(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Count returns the number of registered commands and responses
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID. Dispatching a response
// ID is an error, same as an unknown one.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		DebugPrintln("[CMD] unknown command " + itoa(int(cmdID)))
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Describe lists "name format" lines in ID order, for debug output
func (r *CommandRegistry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var maxID uint16
	for id := range r.commands {
		if id > maxID {
			maxID = id
		}
	}

	out := ""
	for i := 0; i <= int(maxID); i++ {
		cmd, ok := r.commands[uint16(i)]
		if !ok {
			continue
		}
		out += itoa(i) + " " + cmd.Name
		if cmd.Format != "" {
			out += " " + cmd.Format
		}
		out += "\n"
	}
	return out
}
