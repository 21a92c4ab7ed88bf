package backend

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// hotkeyMods are the modifier flags of a parsed hotkey combo.
type hotkeyMods struct {
	ctrl  bool
	shift bool
	alt   bool
	super bool
}

var hotkeyKeys = map[string]int{
	"f1": keybd_event.VK_F1, "f2": keybd_event.VK_F2, "f3": keybd_event.VK_F3,
	"f4": keybd_event.VK_F4, "f5": keybd_event.VK_F5, "f6": keybd_event.VK_F6,
	"f7": keybd_event.VK_F7, "f8": keybd_event.VK_F8, "f9": keybd_event.VK_F9,
	"f10": keybd_event.VK_F10, "f11": keybd_event.VK_F11, "f12": keybd_event.VK_F12,

	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C,
	"d": keybd_event.VK_D, "e": keybd_event.VK_E, "f": keybd_event.VK_F,
	"g": keybd_event.VK_G, "h": keybd_event.VK_H, "i": keybd_event.VK_I,
	"j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O,
	"p": keybd_event.VK_P, "q": keybd_event.VK_Q, "r": keybd_event.VK_R,
	"s": keybd_event.VK_S, "t": keybd_event.VK_T, "u": keybd_event.VK_U,
	"v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,

	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2,
	"3": keybd_event.VK_3, "4": keybd_event.VK_4, "5": keybd_event.VK_5,
	"6": keybd_event.VK_6, "7": keybd_event.VK_7, "8": keybd_event.VK_8,
	"9": keybd_event.VK_9,

	"space": keybd_event.VK_SPACE,
	"enter": keybd_event.VK_ENTER,
	"tab":   keybd_event.VK_TAB,
}

// parseHotkey splits a combo like "ctrl+shift+F11" into modifier flags and
// one terminal key. Exactly one non-modifier key is required.
func parseHotkey(combo string) (hotkeyMods, int, error) {
	var mods hotkeyMods
	key := -1

	for _, part := range strings.Split(combo, "+") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
			return mods, 0, fmt.Errorf("empty hotkey component in %q", combo)
		case "ctrl", "control":
			mods.ctrl = true
		case "shift":
			mods.shift = true
		case "alt":
			mods.alt = true
		case "super", "win", "cmd", "meta":
			mods.super = true
		default:
			vk, ok := hotkeyKeys[part]
			if !ok {
				return mods, 0, fmt.Errorf("unknown hotkey key %q in %q", part, combo)
			}
			if key != -1 {
				return mods, 0, fmt.Errorf("hotkey %q names more than one key", combo)
			}
			key = vk
		}
	}

	if key == -1 {
		return mods, 0, fmt.Errorf("hotkey %q has no key", combo)
	}
	return mods, key, nil
}

var (
	hotkeyInitOnce sync.Once
	hotkeyInitErr  error
)

// hotkeySupported verifies the input-simulation device can be opened at all.
// Probed once; on Linux opening uinput fails without permissions.
func hotkeySupported() error {
	hotkeyInitOnce.Do(func() {
		_, hotkeyInitErr = keybd_event.NewKeyBonding()
	})
	return hotkeyInitErr
}

// PressHotkey simulates one press-and-release of the combo so an
// always-running external capture utility reacts to it.
func PressHotkey(combo string) error {
	mods, key, err := parseHotkey(combo)
	if err != nil {
		return err
	}

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("input simulation unavailable: %w", err)
	}
	if runtime.GOOS == "linux" {
		// The uinput device needs a moment before it accepts events.
		time.Sleep(2 * time.Second)
	}

	kb.HasCTRL(mods.ctrl)
	kb.HasSHIFT(mods.shift)
	kb.HasALT(mods.alt)
	kb.HasSuper(mods.super)
	kb.SetKeys(key)

	if err := kb.Launching(); err != nil {
		return fmt.Errorf("failed to press hotkey %q: %w", combo, err)
	}
	return nil
}
