package egov

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// Parser converts e-Gov Standard Law XML into a law record and its
// articles. Citation references stay within the parsed law; cross-law
// references need a title registry and are resolved at graph query time
// through stub nodes instead.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// flatText collects all character data inside an element, nested markup
// (Ruby annotations, Line elements) included.
type flatText string

func (t *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			sb.Write(v)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*t = flatText(strings.TrimSpace(sb.String()))
				return nil
			}
			depth--
		}
	}
}

type lawXML struct {
	LawNum string  `xml:"LawNum"`
	Body   lawBody `xml:"LawBody"`

	PromulgateDate string `xml:"PromulgateDate"`
	EffectiveDate  string `xml:"EffectiveDate"`
}

type lawBody struct {
	Title flatText      `xml:"LawTitle"`
	Main  mainProvision `xml:"MainProvision"`
}

type mainProvision struct {
	Parts    []partXML    `xml:"Part"`
	Chapters []chapterXML `xml:"Chapter"`
	Sections []sectionXML `xml:"Section"`
	Articles []articleXML `xml:"Article"`
}

type partXML struct {
	Chapters []chapterXML `xml:"Chapter"`
	Articles []articleXML `xml:"Article"`
}

type chapterXML struct {
	Title    flatText     `xml:"ChapterTitle"`
	Sections []sectionXML `xml:"Section"`
	Articles []articleXML `xml:"Article"`
}

type sectionXML struct {
	Title    flatText     `xml:"SectionTitle"`
	Articles []articleXML `xml:"Article"`
}

type articleXML struct {
	Num        string         `xml:"Num,attr"`
	Title      flatText       `xml:"ArticleTitle"`
	Caption    flatText       `xml:"ArticleCaption"`
	Paragraphs []paragraphXML `xml:"Paragraph"`
}

type paragraphXML struct {
	Num  string   `xml:"Num,attr"`
	Text flatText `xml:",any"`
}

// Paragraph text is scattered over ParagraphNum, ParagraphSentence and
// Item children, so the paragraph element is flattened as a whole.
func (p *paragraphXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Num" {
			p.Num = attr.Value
		}
	}
	return p.Text.UnmarshalXML(d, start)
}

var articleRefPattern = regexp.MustCompile(`第[一二三四五六七八九十百千０-９0-9]+条(?:の[一二三四五六七八九十０-９0-9]+)*`)

func (p *Parser) Parse(lawID string, r io.Reader) (*domain.Law, []domain.Article, error) {
	var doc lawXML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode law xml: %w", err)
	}

	title := strings.TrimSpace(string(doc.Body.Title))
	if title == "" {
		return nil, nil, fmt.Errorf("decode law xml: missing LawTitle")
	}

	law := &domain.Law{
		ID:            lawID,
		Title:         title,
		Number:        strings.TrimSpace(doc.LawNum),
		Category:      categorize(title),
		PromulgatedOn: strings.TrimSpace(doc.PromulgateDate),
		EffectiveOn:   strings.TrimSpace(doc.EffectiveDate),
	}

	articles := flattenArticles(doc.Body.Main)
	out := make([]domain.Article, 0, len(articles))
	for i, a := range articles {
		content := buildContent(a.article)
		if content == "" {
			continue
		}
		out = append(out, domain.Article{
			LawID:    lawID,
			Number:   articleNumber(a.article),
			Caption:  strings.TrimSpace(string(a.article.Caption)),
			Content:  content,
			Position: i,
			Meta: domain.ArticleMeta{
				Chapter:       a.chapter,
				Section:       a.section,
				EffectiveDate: law.EffectiveOn,
			},
		})
	}
	if len(out) == 0 {
		return nil, nil, fmt.Errorf("decode law xml: law %q has no articles", title)
	}

	resolveReferences(out)
	law.ArticleCount = len(out)
	return law, out, nil
}

type placedArticle struct {
	article articleXML
	chapter string
	section string
}

func flattenArticles(main mainProvision) []placedArticle {
	var out []placedArticle

	appendChapter := func(ch chapterXML) {
		chapter := string(ch.Title)
		for _, a := range ch.Articles {
			out = append(out, placedArticle{article: a, chapter: chapter})
		}
		for _, sec := range ch.Sections {
			for _, a := range sec.Articles {
				out = append(out, placedArticle{article: a, chapter: chapter, section: string(sec.Title)})
			}
		}
	}

	for _, part := range main.Parts {
		for _, a := range part.Articles {
			out = append(out, placedArticle{article: a})
		}
		for _, ch := range part.Chapters {
			appendChapter(ch)
		}
	}
	for _, ch := range main.Chapters {
		appendChapter(ch)
	}
	for _, sec := range main.Sections {
		for _, a := range sec.Articles {
			out = append(out, placedArticle{article: a, section: string(sec.Title)})
		}
	}
	for _, a := range main.Articles {
		out = append(out, placedArticle{article: a})
	}
	return out
}

func articleNumber(a articleXML) string {
	if title := strings.TrimSpace(string(a.Title)); title != "" {
		return title
	}
	if a.Num != "" {
		return "第" + a.Num + "条"
	}
	return ""
}

func buildContent(a articleXML) string {
	parts := make([]string, 0, len(a.Paragraphs)+1)
	if caption := strings.TrimSpace(string(a.Caption)); caption != "" {
		parts = append(parts, caption)
	}
	for _, p := range a.Paragraphs {
		text := normalizeWhitespace(string(p.Text))
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveReferences extracts intra-law citations from article text. Explicit
// 第N条 mentions are matched against the law's own article numbers; 前条 and
// 次条 resolve positionally.
func resolveReferences(articles []domain.Article) {
	known := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		known[a.Number] = struct{}{}
	}

	for i := range articles {
		seen := make(map[string]struct{})
		var refs []string

		add := func(number string) {
			if number == "" || number == articles[i].Number {
				return
			}
			if _, ok := known[number]; !ok {
				return
			}
			key := articles[i].LawID + "#" + number
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			refs = append(refs, key)
		}

		for _, match := range articleRefPattern.FindAllString(articles[i].Content, -1) {
			add(match)
		}
		if strings.Contains(articles[i].Content, "前条") && i > 0 {
			add(articles[i-1].Number)
		}
		if strings.Contains(articles[i].Content, "次条") && i+1 < len(articles) {
			add(articles[i+1].Number)
		}

		articles[i].References = refs
	}
}

var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"所得税", "税法"},
	{"法人税", "税法"},
	{"消費税", "税法"},
	{"相続税", "税法"},
	{"地方税", "税法"},
	{"国税", "税法"},
	{"租税", "税法"},
	{"関税", "税法"},
	{"税", "税法"},
	{"会社法", "商法"},
	{"商法", "商法"},
	{"民法", "民法"},
	{"刑法", "刑法"},
}

func categorize(title string) string {
	for _, kw := range categoryKeywords {
		if strings.Contains(title, kw.keyword) {
			return kw.category
		}
	}
	return ""
}
