package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TruncationMarker ends every truncated field. It is plain ASCII so that it
// never changes an SMS from GSM-7 to UCS-2 encoding.
const TruncationMarker = "..."

// Limits are per-channel output bounds. Zero disables a limit.
type Limits struct {
	EmailSubjectRunes int `yaml:"email_subject_runes"`
	SMSSegments       int `yaml:"sms_segments"`
	PushTitleRunes    int `yaml:"push_title_runes"`
	PushBodyBytes     int `yaml:"push_body_bytes"`
	ChatTextRunes     int `yaml:"chat_text_runes"`
	InAppTitleRunes   int `yaml:"in_app_title_runes"`
	InAppMessageRunes int `yaml:"in_app_message_runes"`
}

// DefaultLimits fit common provider constraints: one SMS segment, an APNs-sized
// push body and a Slack section block.
func DefaultLimits() Limits {
	return Limits{
		EmailSubjectRunes: 255,
		SMSSegments:       1,
		PushTitleRunes:    64,
		PushBodyBytes:     2048,
		ChatTextRunes:     3000,
		InAppTitleRunes:   200,
		InAppMessageRunes: 2000,
	}
}

// truncateRunes shortens s to at most limit runes, marker included.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - len(TruncationMarker)
	if keep <= 0 {
		return TruncationMarker[:limit]
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:keep]), " \t\n") + TruncationMarker
}

// truncateBytes shortens s to at most limit bytes without splitting a rune.
func truncateBytes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	keep := limit - len(TruncationMarker)
	if keep <= 0 {
		return TruncationMarker[:limit]
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	return strings.TrimRight(s[:keep], " \t\n") + TruncationMarker
}

// GSM 03.38 basic set and the extension characters that take two septets.
const (
	gsmBasic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"
	gsmExtended = "^{}\\[~]|€\f"
)

// smsUnits returns the length of text in its encoding's units and whether it
// fits GSM-7.
func smsUnits(text string) (int, bool) {
	units := 0
	for _, r := range text {
		switch {
		case strings.ContainsRune(gsmBasic, r):
			units++
		case strings.ContainsRune(gsmExtended, r):
			units += 2
		default:
			return utf16Len(text), false
		}
	}
	return units, true
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// smsCapacity is how many units fit in segments segments.
func smsCapacity(gsm bool, segments int) int {
	single, multi := 160, 153
	if !gsm {
		single, multi = 70, 67
	}
	if segments <= 1 {
		return single
	}
	return multi * segments
}

// SMSSegments reports how many segments text needs once normalised.
func SMSSegments(text string) int {
	units, gsm := smsUnits(norm.NFC.String(text))
	if units == 0 {
		return 0
	}
	single, multi := 160, 153
	if !gsm {
		single, multi = 70, 67
	}
	if units <= single {
		return 1
	}
	return (units + multi - 1) / multi
}

// fitSMS NFC-normalises text and truncates it to fit segments segments.
func fitSMS(text string, segments int) string {
	text = norm.NFC.String(text)
	if segments <= 0 {
		return text
	}
	units, gsm := smsUnits(text)
	capacity := smsCapacity(gsm, segments)
	if units <= capacity {
		return text
	}

	budget := capacity - len(TruncationMarker)
	var b strings.Builder
	used := 0
	for _, r := range text {
		cost := 1
		switch {
		case gsm && strings.ContainsRune(gsmExtended, r):
			cost = 2
		case !gsm && r >= 0x10000:
			cost = 2
		}
		if used+cost > budget {
			break
		}
		used += cost
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " \t\n") + TruncationMarker
}
