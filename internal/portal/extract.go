package portal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tmwatch/internal/domain"
)

const deadlineLayout = "2006-01-02 15:04:05"

var (
	reDigits        = regexp.MustCompile(`\d+`)
	reTaskID        = regexp.MustCompile(`(?i)(?:id[-_]?task|task[-_]?id)\W{0,3}(\d+)`)
	reTranslationID = regexp.MustCompile(`(?i)(?:id[-_]?translation|translation[-_]?id)\W{0,3}(\d+)`)
)

// ParseDeadline reads the first digit run of s as epoch milliseconds and
// renders it in loc.
func ParseDeadline(s string, loc *time.Location) (string, error) {
	digits := reDigits.FindString(s)
	if digits == "" {
		return "", fmt.Errorf("no timestamp in %q", s)
	}
	ms, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", fmt.Errorf("timestamp %q: %w", digits, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(deadlineLayout), nil
}

func JobInfo(j domain.Job, loc *time.Location) string {
	deadline, err := ParseDeadline(j.ScheduleCompleteTime, loc)
	if err != nil {
		deadline = "unknown"
	}
	return fmt.Sprintf("Fee Payable: $%s, Dead line: %s", j.FeePayable, deadline)
}

// ExtractIDs finds the first element whose attributes carry both a task id
// and a translation id (data attributes, query strings or click handlers).
func ExtractIDs(html string) (taskID, translationID domain.ID, ok bool) {
	if strings.TrimSpace(html) == "" {
		return "", "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", false
	}

	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(s.Nodes) == 0 {
			return true
		}
		var b strings.Builder
		for _, a := range s.Nodes[0].Attr {
			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(a.Val)
			b.WriteByte(' ')
		}
		attrs := b.String()

		t := reTaskID.FindStringSubmatch(attrs)
		tr := reTranslationID.FindStringSubmatch(attrs)
		if t == nil || tr == nil {
			return true
		}
		taskID, translationID, ok = domain.ID(t[1]), domain.ID(tr[1]), true
		return false
	})
	return taskID, translationID, ok
}
