package notify

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/waitlist-engine/internal/domain"
)

// Templates are the Liquid sources for the confirmation email.
type Templates struct {
	Subject string
	HTML    string
	Text    string
}

// DefaultTemplates is used when no custom templates are configured.
var DefaultTemplates = Templates{
	Subject: `{% if resend %}Reminder: {% endif %}Confirm your spot on the waitlist ({{ position | ordinal }} in line)`,
	HTML: `<p>Hi {{ name | default: "there" }},</p>
<p>You're <strong>{{ position | ordinal }}</strong> on the waitlist.</p>
{% if confirm_url != "" %}<p><a href="{{ confirm_url }}">Confirm your email</a> to hold your spot. The link expires in 24 hours.</p>{% endif %}
<p>Move up the list by sharing your code: <strong>{{ referral_code }}</strong></p>`,
	Text: `Hi {{ name | default: "there" }},

You're {{ position | ordinal }} on the waitlist.
{% if confirm_url != "" %}
Confirm your email to hold your spot (link expires in 24 hours):
{{ confirm_url }}
{% endif %}
Share your referral code to move up: {{ referral_code }}
`,
}

// renderer compiles templates once and renders them per message.
type renderer struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
	mu      sync.Mutex
}

func newRenderer(t Templates) (*renderer, error) {
	engine := liquid.NewEngine()
	registerFilters(engine)

	r := &renderer{}
	var err error
	if r.subject, err = engine.ParseString(t.Subject); err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	if r.html, err = engine.ParseString(t.HTML); err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	if t.Text != "" {
		if r.text, err = engine.ParseString(t.Text); err != nil {
			return nil, fmt.Errorf("parse text template: %w", err)
		}
	}
	return r, nil
}

type rendered struct {
	Subject, HTML, Text string
}

func (r *renderer) render(msg domain.ConfirmationEmail) (rendered, error) {
	b := liquid.Bindings{
		"name":          msg.Name,
		"email":         msg.Email,
		"position":      msg.Position,
		"referral_code": msg.ReferralCode,
		"confirm_url":   msg.ConfirmURL,
		"resend":        msg.Resend,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out rendered
	var err error
	if out.Subject, err = r.subject.RenderString(b); err != nil {
		return out, fmt.Errorf("render subject: %w", err)
	}
	if out.HTML, err = r.html.RenderString(b); err != nil {
		return out, fmt.Errorf("render html: %w", err)
	}
	if r.text != nil {
		if out.Text, err = r.text.RenderString(b); err != nil {
			return out, fmt.Errorf("render text: %w", err)
		}
	}
	return out, nil
}

func registerFilters(engine *liquid.Engine) {
	// Default value filter: {{ name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Ordinal filter: {{ 42 | ordinal }} → "42nd"
	engine.RegisterFilter("ordinal", func(value interface{}) string {
		n, err := strconv.Atoi(fmt.Sprintf("%v", value))
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return ordinal(n)
	})
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
