package formelement

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

// CaptchaVerifier issues challenges and checks answers. Tokens are opaque
// to the renderer and travel in a hidden sibling input.
type CaptchaVerifier interface {
	Challenge() (question, token string)
	Verify(token, answer string) bool
}

// DefaultCaptchaTTL bounds how long a math challenge stays answerable.
const DefaultCaptchaTTL = 30 * time.Minute

// MathCaptcha asks for the sum of two small numbers. The expected answer is
// bound into an HMAC signed token so no server state is kept.
type MathCaptcha struct {
	secret []byte
	TTL    time.Duration
	now    func() time.Time
}

// NewMathCaptcha returns a verifier signing with secret, or with a random
// key when secret is empty.
func NewMathCaptcha(secret []byte) *MathCaptcha {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(err)
		}
	}
	return &MathCaptcha{secret: secret, TTL: DefaultCaptchaTTL, now: time.Now}
}

func (m *MathCaptcha) sign(expires int64, answer string) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%d:%s", expires, answer)
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MathCaptcha) Challenge() (string, string) {
	a, b := mrand.IntN(9)+1, mrand.IntN(9)+1
	expires := m.now().Add(m.TTL).Unix()
	token := strconv.FormatInt(expires, 10) + "." + m.sign(expires, strconv.Itoa(a+b))
	return fmt.Sprintf("What is %d + %d?", a, b), token
}

func (m *MathCaptcha) Verify(token, answer string) bool {
	exp, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	expires, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || m.now().Unix() > expires {
		return false
	}
	want := m.sign(expires, strings.TrimSpace(answer))
	return hmac.Equal([]byte(want), []byte(sig))
}

type captchaElement struct{}

func (captchaElement) Render(r *Renderer, def *fielddef.Definition, _ string, opt Options) []*html.Node {
	if r.Captcha == nil {
		return nil
	}
	question, token := r.Captcha.Challenge()
	name := inputName(def, opt, false)
	n := input(def, opt, "text", name)
	setAttr(n, "autocomplete", "off")
	return []*html.Node{
		label(text(r.t(question))),
		n,
		hidden(name+TokenSuffix, token),
	}
}

func (captchaElement) Display(*Renderer, *fielddef.Definition, string, DisplayOptions) []*html.Node {
	return nil
}

// Parse verifies the answer. Captcha fields store nothing.
func (captchaElement) Parse(r *Renderer, _ *fielddef.Definition, sub Submission) (string, error) {
	if r.Captcha == nil || !r.Captcha.Verify(sub.Token, sub.Last()) {
		return "", ErrCaptcha
	}
	return "", nil
}
