// Package receipt hands browsers a tamper-proof record of the slot they
// reserved. It does not identify anyone; it only lets a client show its own
// reservation again after a reload.
package receipt

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const cookieName = "smartpark_receipt"

// lifetime matches the longest a browser is expected to keep a slot.
const lifetime = 24 * time.Hour

type Receipt struct {
	SlotID       int       `json:"id"`
	Confirmation string    `json:"confirmation"`
	ReservedAt   time.Time `json:"reserved_at"`
}

type Codec struct {
	sc *securecookie.SecureCookie
}

func NewCodec(hashKey, blockKey []byte) *Codec {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(lifetime.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Codec{sc: sc}
}

func (c *Codec) Set(w http.ResponseWriter, r *http.Request, rc Receipt) error {
	encoded, err := c.sc.Encode(cookieName, rc)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(lifetime.Seconds()),
	})
	return nil
}

// Get returns the receipt carried by r, if it has a valid one.
func (c *Codec) Get(r *http.Request) (Receipt, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return Receipt{}, false
	}
	var rc Receipt
	if err := c.sc.Decode(cookieName, cookie.Value, &rc); err != nil {
		return Receipt{}, false
	}
	if rc.Confirmation == "" {
		return Receipt{}, false
	}
	return rc, true
}
