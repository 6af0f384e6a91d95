// Package extract turns raw exhibition detail pages into structured records.
//
// The target site mixes at least two template generations, so every field is
// resolved through an ordered strategy chain: the first selector that yields a
// non-empty value wins, and the inline listing summary is the final fallback.
// Extraction never fails; missing fields stay empty.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/normalize"
)

// Korean table headers used by the site's info table. Column order varies
// between pages, so rows are dispatched by header substring, not position.
var tableFields = []struct {
	keyword string
	assign  func(*exhibit.Detail, string, *goquery.Selection)
}{
	{"기간", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Period = text }},
	{"시간", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.OpeningHours = text }},
	{"장소", func(d *exhibit.Detail, text string, td *goquery.Selection) {
		if link := td.Find("a").First(); link.Length() > 0 {
			text = normalize.CleanText(link.Text())
		}
		d.Venue = text
	}},
	{"주소", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Address = text }},
	{"휴관", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.ClosedDays = text }},
	{"관람료", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Price = text }},
	{"입장료", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Price = text }},
	{"전화", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Telephone = text }},
	{"문의", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Telephone = text }},
	{"사이트", func(d *exhibit.Detail, text string, td *goquery.Selection) { d.Website = anchorHref(td, text) }},
	{"홈페이지", func(d *exhibit.Detail, text string, td *goquery.Selection) { d.Website = anchorHref(td, text) }},
	{"작가", func(d *exhibit.Detail, text string, _ *goquery.Selection) { d.Artists = text }},
}

// Extractor parses detail-page HTML for a single site.
type Extractor struct {
	baseURL string
}

// New creates an Extractor that resolves relative image URLs against baseURL.
func New(baseURL string) *Extractor {
	return &Extractor{baseURL: baseURL}
}

// Extract returns the best-effort detail for one page. The discovered link's
// summary fields fill any gap the page itself does not yield. A document that
// cannot be parsed at all produces a summary-only detail with FetchError set.
func (e *Extractor) Extract(html string, link exhibit.DiscoveredLink) exhibit.Detail {
	detail := summaryOnly(link)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		detail.FetchError = "parse html: " + err.Error()
		return detail
	}

	if title := e.extractTitle(doc); title != "" {
		detail.Title = title
	}
	e.extractInfoTable(doc, &detail)
	if detail.Venue == "" {
		detail.Venue = normalize.CleanText(link.Venue)
	}
	if detail.Period == "" {
		detail.Period = normalize.CleanText(link.Period)
	}
	detail.Description = e.extractDescription(doc)
	detail.Images = e.extractImages(doc, link)
	return detail
}

func summaryOnly(link exhibit.DiscoveredLink) exhibit.Detail {
	detail := exhibit.Detail{
		Title:     normalize.CleanText(link.Title),
		Venue:     normalize.CleanText(link.Venue),
		Period:    normalize.CleanText(link.Period),
		DetailURL: link.URL,
	}
	if link.ThumbnailURL != "" {
		detail.Images = []string{link.ThumbnailURL}
	}
	return detail
}

// extractTitle tries the fixed big-heading selector first, then the centered
// div preceding the info table used by the older template.
func (e *Extractor) extractTitle(doc *goquery.Document) string {
	if sel := doc.Find(`div[style*="font-size:26px"][style*="text-align:center"]`).First(); sel.Length() > 0 {
		if title := normalize.CleanText(sel.Text()); title != "" {
			return title
		}
	}

	var title string
	doc.Find("table").First().PrevAll().EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !sel.Is("div") {
			return true
		}
		style, _ := sel.Attr("style")
		if strings.Contains(style, "text-align:center") && strings.Contains(style, "font-size") {
			title = normalize.CleanText(sel.Text())
			return title == ""
		}
		return true
	})
	return title
}

// extractInfoTable walks the header/value rows of the first detail table and
// dispatches each on a header keyword match.
func (e *Extractor) extractInfoTable(doc *goquery.Document, detail *exhibit.Detail) {
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		header := normalize.CleanText(th.Text())
		value := normalize.CleanText(td.Text())
		if header == "" || value == "" {
			return
		}
		for _, field := range tableFields {
			if strings.Contains(header, field.keyword) {
				field.assign(detail, value, td)
				return
			}
		}
	})
}

func (e *Extractor) extractDescription(doc *goquery.Document) string {
	for _, selector := range []string{".exhibition_info", ".info_text"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := normalize.CleanText(sel.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// extractImages resolves the main image through four fallbacks, then appends
// the gallery images. The first entry is the poster candidate.
func (e *Extractor) extractImages(doc *goquery.Document, link exhibit.DiscoveredLink) []string {
	main := e.mainImage(doc)

	seen := make(map[string]struct{})
	var images []string
	add := func(raw string) {
		resolved := normalize.ResolveImageURL(raw, e.baseURL)
		if resolved == "" {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		images = append(images, resolved)
	}

	add(main)
	doc.Find(".detail_image img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		add(src)
	})
	if len(images) == 0 {
		add(link.ThumbnailURL)
	}
	return images
}

func (e *Extractor) mainImage(doc *goquery.Document) string {
	// Explicit large-image style marker used by the newer template.
	if src, ok := doc.Find(`img[style*="max-width:100%"][style*="max-height:600px"]`).First().Attr("src"); ok && src != "" {
		return src
	}
	// Gallery / slider first image.
	for _, selector := range []string{".swiper-wrapper img", ".detail_image img"} {
		if src, ok := doc.Find(selector).First().Attr("src"); ok && src != "" {
			return src
		}
	}
	// Image immediately preceding the info table.
	var fromTable string
	doc.Find("table").First().PrevAll().EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !sel.Is("img") {
			return true
		}
		src, _ := sel.Attr("src")
		fromTable = src
		return fromTable == ""
	})
	if fromTable != "" {
		return fromTable
	}
	// Any styled image sized by the page.
	var styled string
	doc.Find("img[style]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		style, _ := img.Attr("style")
		if strings.Contains(style, "width") || strings.Contains(style, "height") {
			styled, _ = img.Attr("src")
			return styled == ""
		}
		return true
	})
	return styled
}

func anchorHref(td *goquery.Selection, fallback string) string {
	if href, ok := td.Find("a").First().Attr("href"); ok && href != "" {
		return href
	}
	return fallback
}
