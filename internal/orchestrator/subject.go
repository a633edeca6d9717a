package orchestrator

import (
	"errors"
	"regexp"
	"strings"
)

// QuestionForm is the parsed subject of a new question sent to the generic
// intake address: "[Tag1; Tag2] Title".
type QuestionForm struct {
	Title string
	Tags  []string
}

var (
	taggedSubject = regexp.MustCompile(`^\s*\[([^\]]*)\]\s*(.*)$`)
	tagSeparator  = regexp.MustCompile(`[;,]`)
)

// ParseQuestionSubject splits the subject into tags and title. Absent
// brackets mean zero tags unless tags are mandatory.
func ParseQuestionSubject(subject string, tagsRequired bool) (*QuestionForm, error) {
	var tags []string
	title := strings.TrimSpace(subject)

	if m := taggedSubject.FindStringSubmatch(subject); m != nil {
		for _, tag := range tagSeparator.Split(m[1], -1) {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				tags = append(tags, tag)
			}
		}
		title = strings.TrimSpace(m[2])
	} else if tagsRequired {
		return nil, errors.New("the subject line must start with tags in square brackets, for example [tag1; tag2]")
	}

	if title == "" {
		return nil, errors.New("the subject line must contain the question title")
	}

	return &QuestionForm{Title: title, Tags: tags}, nil
}
