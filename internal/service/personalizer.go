// internal/service/personalizer.go
package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/token"
)

// Personalizer renders campaign templates for a recipient and injects
// tracking instrumentation. It is pure: rendering the same (campaign,
// recipient) pair twice yields byte-identical output, which is what makes
// retries and resumes safe.
type Personalizer struct {
	// BaseURL is the public root of the tracking endpoints, e.g.
	// "https://mail.example.com".
	BaseURL string
}

func NewPersonalizer(baseURL string) *Personalizer {
	return &Personalizer{BaseURL: strings.TrimRight(baseURL, "/")}
}

// RenderedContent is the final per-recipient material stored on a delivery
// job.
type RenderedContent struct {
	Subject string
	HTML    string
	Text    string
}

func (p *Personalizer) Render(c *model.Campaign, r *model.Recipient) RenderedContent {
	out := RenderedContent{
		Subject: Substitute(c.Subject, r),
		HTML:    Substitute(c.HTMLContent, r),
	}
	if c.TextContent != "" {
		out.Text = Substitute(c.TextContent, r)
	}
	// The opt-out link works whether or not unsubscribes are counted.
	unsub := p.unsubscribeURL(c, r)
	out.HTML = strings.ReplaceAll(out.HTML, "{{unsubscribe_url}}", unsub)
	out.Text = strings.ReplaceAll(out.Text, "{{unsubscribe_url}}", unsub)
	if c.TrackOpens && out.HTML != "" {
		out.HTML = p.addTrackingPixel(out.HTML, c, r)
	}
	if c.TrackClicks && out.HTML != "" {
		out.HTML = p.addClickTracking(out.HTML, c, r)
	}
	return out
}

// Substitute replaces {{field}} placeholders with recipient attributes and
// custom fields. Unmatched placeholders are left verbatim: missing
// personalization data degrades, it does not error.
func Substitute(content string, r *model.Recipient) string {
	// Custom fields are applied first so they can shadow the standard
	// attributes; keys are sorted to keep output deterministic.
	names := make([]string, 0, len(r.CustomFields))
	for name := range r.CustomFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content = strings.ReplaceAll(content, "{{"+name+"}}", r.CustomFields[name])
	}

	standard := [...][2]string{
		{"first_name", firstNonEmpty(r.FirstName, r.ShortName())},
		{"last_name", r.LastName},
		{"full_name", r.FullName()},
		{"email", r.Email},
		{"company", r.Company},
		{"city", r.City},
		{"country", r.Country},
	}
	for _, pair := range standard {
		content = strings.ReplaceAll(content, "{{"+pair[0]+"}}", pair[1])
	}
	return content
}

// unsubscribeURL mints the opt-out link for a recipient. The token format
// matches the open beacon, which is what the unsubscribe handler decodes.
func (p *Personalizer) unsubscribeURL(c *model.Campaign, r *model.Recipient) string {
	tok := token.EncodeOpen(c.ID, r.ID, c.PersonalizationAnchor())
	return fmt.Sprintf("%s/unsubscribe/%s", p.BaseURL, tok)
}

// addTrackingPixel appends an invisible open beacon, before </body> when the
// document has one.
func (p *Personalizer) addTrackingPixel(html string, c *model.Campaign, r *model.Recipient) string {
	tok := token.EncodeOpen(c.ID, r.ID, c.PersonalizationAnchor())
	pixel := fmt.Sprintf(
		`<img src="%s/track/open/%s" width="1" height="1" style="display:none;" />`,
		p.BaseURL, tok)
	if strings.Contains(html, "</body>") {
		return strings.Replace(html, "</body>", pixel+"</body>", 1)
	}
	return html + pixel
}

var anchorPattern = regexp.MustCompile(`(?is)<a\s+href="([^"]+)"([^>]*)>(.*?)</a>`)

// addClickTracking rewrites anchor hrefs through the click-redirect
// endpoint. Links that already point at tracking endpoints, and unsubscribe
// links, are left alone.
func (p *Personalizer) addClickTracking(html string, c *model.Campaign, r *model.Recipient) string {
	return anchorPattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := anchorPattern.FindStringSubmatch(match)
		url, attrs, text := groups[1], groups[2], groups[3]

		if strings.Contains(strings.ToLower(url), "unsubscribe") || strings.Contains(url, "/track/") {
			return match
		}
		tok := token.EncodeClick(c.ID, r.ID, url)
		return fmt.Sprintf(`<a href="%s/track/click/%s"%s>%s</a>`, p.BaseURL, tok, attrs, text)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
