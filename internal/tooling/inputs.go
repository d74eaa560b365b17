package tooling

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// dateLayout is the calendar date format accepted by every date field.
const dateLayout = "2006-01-02"

var errBlank = errors.New("must not be blank")

// AddChapterInput creates a thesis chapter.
type AddChapterInput struct {
	Name     string `json:"name" jsonschema:"minLength=1" jsonschema_description:"Chapter title, e.g. Méthodologie"`
	Position int    `json:"position,omitempty" jsonschema:"minimum=1" jsonschema_description:"Optional 1-based position in the outline"`
}

func (in *AddChapterInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("name %w", errBlank)
	}
	return nil
}

// QuickCaptureInput stores a free-form note.
type QuickCaptureInput struct {
	Content string   `json:"content" jsonschema:"minLength=1" jsonschema_description:"Text of the note to capture"`
	Tags    []string `json:"tags,omitempty" jsonschema_description:"Optional labels"`
}

func (in *QuickCaptureInput) normalize() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return fmt.Errorf("content %w", errBlank)
	}
	in.Tags = compact(in.Tags)
	return nil
}

// AddDailyObjectiveInput records an objective for one day (today by default).
type AddDailyObjectiveInput struct {
	Title string `json:"title" jsonschema:"minLength=1" jsonschema_description:"What the user wants to achieve"`
	Date  string `json:"date,omitempty" jsonschema:"pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$" jsonschema_description:"Day in YYYY-MM-DD; defaults to today"`
}

func (in *AddDailyObjectiveInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("title %w", errBlank)
	}
	return checkDate("date", in.Date)
}

// AddSourceInput records a bibliographic source, optionally linked to a chapter.
type AddSourceInput struct {
	Title     string   `json:"title" jsonschema:"minLength=1" jsonschema_description:"Title of the work"`
	Authors   []string `json:"authors,omitempty" jsonschema_description:"Author names"`
	Year      int      `json:"year,omitempty" jsonschema:"minimum=0,maximum=9999" jsonschema_description:"Publication year"`
	URL       string   `json:"url,omitempty" jsonschema_description:"Link or DOI"`
	Kind      string   `json:"kind,omitempty" jsonschema:"enum=book,enum=article,enum=web,enum=thesis,enum=other" jsonschema_description:"Type of source"`
	ChapterID string   `json:"chapterId,omitempty" jsonschema_description:"Chapter the source is cited in"`
}

func (in *AddSourceInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("title %w", errBlank)
	}
	in.Authors = compact(in.Authors)
	in.URL = strings.TrimSpace(in.URL)
	in.ChapterID = strings.TrimSpace(in.ChapterID)
	if in.Kind == "" {
		in.Kind = "other"
	}
	return nil
}

// AddTaskInput creates a to-do item, optionally linked to a chapter.
type AddTaskInput struct {
	Title     string `json:"title" jsonschema:"minLength=1" jsonschema_description:"What needs to be done"`
	ChapterID string `json:"chapterId,omitempty" jsonschema_description:"Chapter the task belongs to"`
	DueDate   string `json:"dueDate,omitempty" jsonschema:"pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$" jsonschema_description:"Due day in YYYY-MM-DD"`
}

func (in *AddTaskInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("title %w", errBlank)
	}
	in.ChapterID = strings.TrimSpace(in.ChapterID)
	return checkDate("dueDate", in.DueDate)
}

// RefinePromptInput asks for an improved version of a prompt.
type RefinePromptInput struct {
	Prompt string `json:"prompt" jsonschema:"minLength=1" jsonschema_description:"The prompt to improve"`
}

func (in *RefinePromptInput) normalize() error {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Prompt == "" {
		return fmt.Errorf("prompt %w", errBlank)
	}
	return nil
}

// ToolOutputSchema documents the shape every executor returns.
type ToolOutputSchema struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty" jsonschema_description:"Identifier of the created record, under a tool-specific key such as chapterId"`
}

func checkDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%s %q is not a valid YYYY-MM-DD date", field, value)
	}
	return nil
}

// compact trims entries and drops blanks. Returns nil for an empty result.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
