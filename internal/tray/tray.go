// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Item is a menu entry. Title, checked and disabled state may be changed
// before or after the tray is shown.
type Item struct {
	title     string
	checkable bool
	checked   bool
	disabled  bool
	callback  func()
	item      *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	title   string
	tooltip string
	items   []*Item // nil entries are separators
	ready   bool
	quitCh  chan struct{}
	onExit  func()
}

// New creates a new system tray
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
	}
}

// AddItem adds a clickable menu item
func (t *Tray) AddItem(title string, callback func()) *Item {
	return t.add(&Item{title: title, callback: callback})
}

// AddCheckbox adds a menu item with a check mark
func (t *Tray) AddCheckbox(title string, checked bool, callback func()) *Item {
	return t.add(&Item{title: title, checkable: true, checked: checked, callback: callback})
}

// AddLabel adds a disabled, informational menu item
func (t *Tray) AddLabel(title string) *Item {
	return t.add(&Item{title: title, disabled: true})
}

func (t *Tray) add(it *Item) *Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, it)
	return it
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil)
}

// OnExit registers a function run after the tray loop ends
func (t *Tray) OnExit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExit = fn
}

// SetChecked sets the checked state of a menu item
func (t *Tray) SetChecked(it *Item, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it.checked = checked
	if it.item == nil {
		return
	}
	if checked {
		it.item.Check()
	} else {
		it.item.Uncheck()
	}
}

// SetTitle changes the label of a menu item
func (t *Tray) SetTitle(it *Item, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it.title = title
	if it.item != nil {
		it.item.SetTitle(title)
	}
}

// SetTooltip changes the icon tooltip
func (t *Tray) SetTooltip(tooltip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tooltip = tooltip
	if !t.ready {
		return
	}
	select {
	case <-t.quitCh:
	default:
		systray.SetTooltip(tooltip)
	}
}

// Run starts the tray event loop (blocks). On macOS it must run on the main thread.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.exit)
}

func (t *Tray) exit() {
	close(t.quitCh)
	t.mu.Lock()
	fn := t.onExit
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	t.mu.Lock()
	defer t.mu.Unlock()

	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())
	t.ready = true

	for _, it := range t.items {
		if it == nil {
			systray.AddSeparator()
			continue
		}
		if it.checkable {
			it.item = systray.AddMenuItemCheckbox(it.title, "", it.checked)
		} else {
			it.item = systray.AddMenuItem(it.title, "")
		}
		if it.disabled {
			it.item.Disable()
		}
		if it.callback != nil {
			go t.listen(it)
		}
	}
}

func (t *Tray) listen(it *Item) {
	for {
		select {
		case <-it.item.ClickedCh:
			it.callback()
		case <-t.quitCh:
			return
		}
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a 16x16 32-bit ICO with a filled circle
func getIcon() []byte {
	const (
		size      = 16
		pixelData = size * size * 4
		maskData  = size * 4 // 1bpp rows padded to 32 bits
		dibHeader = 40
		offset    = 6 + 16
	)
	icon := make([]byte, offset+dibHeader+pixelData+maskData)

	// header: reserved, type 1 (icon), one image
	copy(icon[0:6], []byte{0, 0, 1, 0, 1, 0})
	// directory entry
	le32 := func(b []byte, v int) {
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	icon[6], icon[7] = size, size
	icon[10], icon[12] = 1, 32 // planes, bpp
	le32(icon[14:], dibHeader+pixelData+maskData)
	le32(icon[18:], offset)

	dib := icon[offset:]
	le32(dib[0:], dibHeader)
	le32(dib[4:], size)
	le32(dib[8:], size*2)
	dib[12], dib[14] = 1, 32
	le32(dib[20:], pixelData)

	px := dib[dibHeader:]
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := 2*x-size+1, 2*y-size+1
			if dx*dx+dy*dy > (size-2)*(size-2) {
				continue
			}
			i := (y*size + x) * 4
			px[i], px[i+1], px[i+2], px[i+3] = 0x30, 0x90, 0xe0, 0xff // BGRA
		}
	}
	return icon
}
