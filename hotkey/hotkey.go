package hotkey

// Hotkey fires one event per Ctrl+Shift+Space press, system-wide. The
// caller treats each event as a conversation on/off toggle.
type Hotkey interface {
	Register() error
	Unregister()
	Toggled() <-chan struct{}
}
