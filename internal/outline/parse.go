package outline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	dmodel "deckflow/internal/model"
)

var (
	markerRe = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:\*\*)?slide\s+(\d+)\s*(?:[:.)\-]\s*(.*?))?\s*(?:\*\*)?\s*$`)
	visualRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:visual|image)\s*:\s*(\S+)`)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.*)$`)
)

// Section is one "Slide N" block as written by the model.
type Section struct {
	Number  int
	Title   string
	Bullets []string
	Visual  string
}

// Parse splits outline text on slide markers. Text before the first marker is
// ignored. Text without any marker is a format error.
func Parse(text string) ([]Section, error) {
	var sections []Section
	var cur *Section
	for _, line := range strings.Split(text, "\n") {
		if m := markerRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			sections = append(sections, Section{Number: n, Title: cleanText(m[2])})
			cur = &sections[len(sections)-1]
			continue
		}
		if cur == nil {
			continue
		}
		if m := visualRe.FindStringSubmatch(line); m != nil {
			if u := strings.Trim(m[1], "()<>"); isHTTP(u) {
				cur.Visual = u
			}
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			if b := cleanText(m[1]); b != "" {
				cur.Bullets = append(cur.Bullets, b)
			}
			continue
		}
		if t := cleanText(line); t != "" && cur.Title == "" {
			cur.Title = t
		}
	}
	if len(sections) == 0 {
		return nil, ErrFormat
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Number < sections[j].Number })
	return sections, nil
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_#")
	return strings.TrimSpace(s)
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

var (
	tocWords     = []string{"table of contents", "contents", "agenda"}
	closingWords = []string{"thank you", "thanks", "q&a", "questions", "closing"}
)

func hasAny(title string, words []string) bool {
	t := strings.ToLower(title)
	for _, w := range words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// Normalize assembles [cover, toc, body..., closing] from parsed sections.
// Missing structural slides are synthesised and body slides are capped so
// the deck never exceeds target.
func Normalize(topic string, sections []Section, target int) *dmodel.Outline {
	if target > dmodel.MaxSlides {
		target = dmodel.MaxSlides
	}
	if target < dmodel.MinSlides {
		target = dmodel.MinSlides
	}

	// Roles follow position: only the first section may be the cover, only
	// the one after it the table of contents, only the last the closing.
	// Title keywords decide between the structural role and body at those
	// slots; every other section is body whatever its title says.
	rest := sections
	var cover, closing *Section
	if len(rest) > 0 && !hasAny(rest[0].Title, tocWords) {
		c := rest[0]
		cover = &c
		rest = rest[1:]
	}
	if len(rest) > 0 && hasAny(rest[0].Title, tocWords) {
		// regenerated from body titles
		rest = rest[1:]
	}
	if n := len(rest); n > 0 && hasAny(rest[n-1].Title, closingWords) {
		c := rest[n-1]
		closing = &c
		rest = rest[:n-1]
	}
	body := append([]Section(nil), rest...)

	if cover == nil {
		cover = &Section{Title: topic}
	}
	if cover.Title == "" {
		cover.Title = topic
	}
	if closing == nil {
		closing = &Section{Title: "Thank You"}
	}
	if maxBody := target - 3; len(body) > maxBody {
		body = body[:maxBody]
	}
	if len(body) == 0 {
		body = []Section{{Title: topic, Bullets: []string{"Overview of " + topic}}}
	}

	out := &dmodel.Outline{Topic: topic}
	add := func(role dmodel.Role, s Section) {
		out.Slides = append(out.Slides, dmodel.SlideSpec{
			Index:   len(out.Slides) + 1,
			Role:    role,
			Title:   s.Title,
			Bullets: s.Bullets,
			Visual:  s.Visual,
		})
	}

	add(dmodel.RoleCover, *cover)
	toc := Section{Title: "Table of Contents"}
	for k, s := range body {
		title := s.Title
		if title == "" {
			title = "Section " + strconv.Itoa(k+1)
		}
		toc.Bullets = append(toc.Bullets, title)
	}
	add(dmodel.RoleTOC, toc)
	for _, s := range body {
		add(dmodel.RoleBody, s)
	}
	add(dmodel.RoleClosing, *closing)
	return out
}

// AttachVisuals hands unused research images to body slides that have none,
// in order, each image at most once.
func AttachVisuals(o *dmodel.Outline, visuals []dmodel.Visual) {
	used := make(map[string]bool)
	for _, s := range o.Slides {
		if s.Visual != "" {
			used[s.Visual] = true
		}
	}
	next := 0
	for i := range o.Slides {
		s := &o.Slides[i]
		if s.Role != dmodel.RoleBody || s.Visual != "" {
			continue
		}
		for next < len(visuals) && (used[visuals[next].URL] || !isHTTP(visuals[next].URL)) {
			next++
		}
		if next >= len(visuals) {
			return
		}
		s.Visual = visuals[next].URL
		used[s.Visual] = true
		next++
	}
}
