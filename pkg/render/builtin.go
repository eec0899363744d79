package render

// Builtin returns the account lifecycle templates shipped with the service.
// A template file may override any of them by name.
func Builtin() []Template {
	return []Template{
		{
			Name:     "welcome",
			Required: []string{"name", "app_name"},
			Email: &EmailTemplate{
				Subject: "Welcome to {{.app_name}}",
				HTML: `<h1>Welcome, {{.name}}!</h1>
<p>Your {{.app_name}} account is ready.</p>
{{with index . "dashboard_url"}}<p><a href="{{.}}">Open your dashboard</a></p>{{end}}`,
				Tag: "welcome",
			},
			InApp: &InAppTemplate{
				Title:   "Welcome to {{.app_name}}",
				Message: "Hi {{.name}}, your account is ready.",
			},
		},
		{
			Name:     "verify_email",
			Required: []string{"name", "verify_url", "expires_in"},
			Email: &EmailTemplate{
				Subject: "Confirm your email address",
				HTML: `<p>Hi {{.name}},</p>
<p>Confirm your email address by following <a href="{{.verify_url}}">this link</a>.</p>
<p>The link expires in {{.expires_in}}.</p>`,
				Tag: "verify-email",
			},
		},
		{
			Name:     "password_reset",
			Required: []string{"name", "reset_url", "expires_in"},
			Email: &EmailTemplate{
				Subject: "Reset your password",
				HTML: `<p>Hi {{.name}},</p>
<p>We received a request to reset your password. <a href="{{.reset_url}}">Choose a new password</a>.</p>
<p>The link expires in {{.expires_in}}. If you did not ask for this, ignore this email.</p>`,
				Tag: "password-reset",
			},
			SMS: &SMSTemplate{
				Text: "Password reset requested for your account. If this was not you, contact support.",
			},
		},
		{
			Name:     "2fa_enabled",
			Required: []string{"name"},
			Email: &EmailTemplate{
				Subject: "Two-factor authentication enabled",
				HTML: `<p>Hi {{.name}},</p>
<p>Two-factor authentication is now enabled on your account.</p>
<p>If you did not make this change, reset your password immediately.</p>`,
				Tag: "2fa-enabled",
			},
			SMS: &SMSTemplate{
				Text: "Two-factor authentication was enabled on your account.",
			},
			Push: &PushTemplate{
				Title: "Security update",
				Body:  "Two-factor authentication is now on.",
			},
			InApp: &InAppTemplate{
				Title:   "Two-factor authentication enabled",
				Message: "Your account now requires a second factor at sign in.",
			},
		},
	}
}
