//go:build rp2040

package main

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ssd1306"

	"wdtclock/config"
	"wdtclock/core"
)

// 3x5 glyphs, one row per byte, bit 2 is the leftmost column
var glyphs = map[byte][5]uint8{
	'0': {7, 5, 5, 5, 7},
	'1': {2, 6, 2, 2, 7},
	'2': {7, 1, 7, 4, 7},
	'3': {7, 1, 7, 1, 7},
	'4': {5, 5, 7, 1, 1},
	'5': {7, 4, 7, 1, 7},
	'6': {7, 4, 7, 5, 7},
	'7': {7, 1, 2, 2, 2},
	'8': {7, 5, 7, 5, 7},
	'9': {7, 5, 7, 1, 7},
	':': {0, 2, 0, 2, 0},
	'-': {0, 0, 7, 0, 0},
	'?': {7, 1, 3, 0, 2},
}

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// clockDisplay shows HH:MM:SS over YYYY-MM-DD on an SSD1306
type clockDisplay struct {
	dev   ssd1306.Device
	clock *core.Clock
}

func newClockDisplay(bus drivers.I2C, board config.BoardConfig, clock *core.Clock) *clockDisplay {
	d := &clockDisplay{
		dev:   ssd1306.NewI2C(bus),
		clock: clock,
	}
	d.dev.Configure(ssd1306.Config{
		Address:  board.DisplayAddress,
		Width:    board.DisplayWidth,
		Height:   board.DisplayHeight,
		VccState: ssd1306.SWITCHCAPVCC,
	})
	d.dev.ClearDisplay()
	return d
}

// drawText draws s at (x, y) scaled by scale and returns the next x
func (d *clockDisplay) drawText(x, y int16, scale int16, s string) int16 {
	for i := 0; i < len(s); i++ {
		g, ok := glyphs[s[i]]
		if !ok {
			g = glyphs['?']
		}
		for row := int16(0); row < 5; row++ {
			for col := int16(0); col < 3; col++ {
				if g[row]&(4>>col) == 0 {
					continue
				}
				for dy := int16(0); dy < scale; dy++ {
					for dx := int16(0); dx < scale; dx++ {
						d.dev.SetPixel(x+col*scale+dx, y+row*scale+dy, white)
					}
				}
			}
		}
		x += 4 * scale
	}
	return x
}

// Show redraws the display for the given time
func (d *clockDisplay) Show(now core.Epoch) {
	f := d.clock.Fields(core.At(now))

	d.dev.ClearBuffer()
	if d.clock.Status() == core.StatusNotSet {
		d.drawText(0, 0, 3, "--:--:--")
	} else {
		d.drawText(0, 0, 3, core.Pad2(f.Hour)+":"+core.Pad2(f.Minute)+":"+core.Pad2(f.Second))
	}

	year := core.CalendarYear(f.Year)
	date := core.Pad2(uint8(year/100)) + core.Pad2(uint8(year%100)) + "-" + core.Pad2(f.Month) + "-" + core.Pad2(f.Day)
	d.drawText(0, 20, 2, date)

	if err := d.dev.Display(); err != nil {
		core.DebugPrintln("[DISPLAY] update failed: " + err.Error())
	}
}
