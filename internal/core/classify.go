package core

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const styledMarker = `<span style="color: #`

// The service renders tips as server-side markup; quoting style varies.
var tipMarker = regexp.MustCompile(`(?i)<span class=['"]label label-success['"]>has tipped `)

// ErrMalformedTip is returned when a tip addressed to us has no usable amount.
var ErrMalformedTip = errors.New("malformed tip amount")

// Classify annotates a raw chat line for a client logged in as username.
// A non-nil error means the line looked like a tip to username but its amount
// could not be read; the message is still returned, as plain chat.
func Classify(room, user, raw, username string) (*Message, error) {
	msg := &Message{
		Room: room,
		User: user,
		Raw:  raw,
		Text: raw,
	}

	var err error
	if text, ok := StyledText(raw); ok {
		msg.Text = text
	} else {
		msg.TipAmount, msg.IsTip, err = ParseTip(raw, username)
	}

	msg.Params = strings.Fields(strings.ToLower(strings.TrimSpace(msg.Text)))
	return msg, err
}

// StyledText unwraps a colored message: everything after the first `">`
// with the first closing span removed. ok is false for unstyled text.
func StyledText(raw string) (string, bool) {
	if !strings.Contains(strings.ToLower(raw), styledMarker) {
		return "", false
	}
	_, after, found := strings.Cut(raw, `">`)
	if !found {
		return "", false
	}
	return strings.Replace(after, "</span>", "", 1), true
}

// ParseTip reports whether raw announces a tip to username and its amount.
// The recipient is the first word after "has tipped" and the amount the one
// after that.
func ParseTip(raw, username string) (amount float64, isTip bool, err error) {
	loc := tipMarker.FindStringIndex(raw)
	if loc == nil {
		return 0, false, nil
	}

	fields := strings.Fields(visibleText(raw[loc[1]:]))
	if len(fields) == 0 || !strings.EqualFold(fields[0], username) {
		return 0, false, nil
	}
	if len(fields) < 2 {
		return 0, false, fmt.Errorf("%w: missing amount", ErrMalformedTip)
	}

	amount, err = strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, false, fmt.Errorf("%w: %q", ErrMalformedTip, fields[1])
	}
	return amount, true, nil
}

// visibleText drops tags from an HTML fragment, leaving a space where each
// tag was so adjacent words stay separate.
func visibleText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
