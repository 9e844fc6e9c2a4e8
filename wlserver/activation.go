package wlserver

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/mstarongithub/wayembed/wire"
)

const (
	activationRequestDestroy            = 0
	activationRequestGetActivationToken = 1
	activationRequestActivate           = 2

	activationTokenRequestSetSerial  = 0
	activationTokenRequestSetAppID   = 1
	activationTokenRequestSetSurface = 2
	activationTokenRequestCommit     = 3
	activationTokenRequestDestroy    = 4

	activationTokenEventDone = 0

	activationTokenErrorAlreadyUsed = 0
)

// ActivateEvent is a client's request to focus Surface.
type ActivateEvent struct {
	Token   string
	Known   bool
	AppID   string
	Surface *Surface
}

type activationToken struct {
	appID     string
	committed bool
}

// Activation is the xdg_activation_v1 global. Tokens are handed out
// freely; whether an activation is honored is up to the OnActivate
// handlers.
type Activation struct {
	display    *Display
	global     *Global
	tokens     map[string]*activationToken
	onActivate []func(ActivateEvent)
}

func NewActivation(d *Display) *Activation {
	a := &Activation{display: d, tokens: make(map[string]*activationToken)}
	a.global = d.AddGlobal("xdg_activation_v1", 1, func(c *Client, id, version uint32) error {
		_, err := c.NewResource(id, "xdg_activation_v1", version, HandlerFunc(a.handle))
		return err
	})
	return a
}

// OnActivate registers fn for every activate request.
func (a *Activation) OnActivate(fn func(ActivateEvent)) {
	a.onActivate = append(a.onActivate, fn)
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func (a *Activation) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case activationRequestDestroy:
		r.Destroy()
	case activationRequestGetActivationToken:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		tok := &activationToken{}
		_, err := r.client.NewResource(id, "xdg_activation_token_v1", r.version, HandlerFunc(func(r *Resource, opcode uint16, d *wire.Decoder) error {
			return a.handleToken(tok, r, opcode, d)
		}))
		return err
	case activationRequestActivate:
		token := d.String()
		surfaceID := d.Object()
		if d.Err() != nil {
			return nil
		}
		s := SurfaceFromResource(r.client.Object(surfaceID))
		if s == nil {
			return protoErr(r, displayErrorInvalidObject, "invalid surface %d", surfaceID)
		}
		ev := ActivateEvent{Token: token, Surface: s}
		if tok, ok := a.tokens[token]; ok {
			ev.Known = true
			ev.AppID = tok.appID
			delete(a.tokens, token)
		}
		for _, fn := range a.onActivate {
			fn(ev)
		}
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func (a *Activation) handleToken(tok *activationToken, r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case activationTokenRequestSetSerial:
		d.Uint32()
		d.Object()
	case activationTokenRequestSetAppID:
		id := d.String()
		if d.Err() == nil {
			tok.appID = id
		}
	case activationTokenRequestSetSurface:
		d.Object()
	case activationTokenRequestCommit:
		if tok.committed {
			return protoErr(r, activationTokenErrorAlreadyUsed, "token already committed")
		}
		tok.committed = true
		name, err := newToken()
		if err != nil {
			return err
		}
		a.tokens[name] = tok
		r.Post(r.NewEvent(activationTokenEventDone).PutString(name))
	case activationTokenRequestDestroy:
		r.Destroy()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}
