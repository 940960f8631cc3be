package lifecycle

import "strings"

const (
	FacultyComputing   = "Faculty of Computing and Information Technology"
	FacultyEngineering = "Faculty of Engineering and Technology"
	FacultyBusiness    = "Faculty of Business and Management"
	FacultyScience     = "Faculty of Science and Technical Education"
	FacultyHumanities  = "Faculty of Humanities and Social Sciences"
	FacultyGeneral     = "General Studies"
)

// facultyRules is ordered: the first rule with a matching keyword wins, so
// "Computer Engineering" lands in computing and "Computer Science" does
// not fall through to science.
var facultyRules = []struct {
	faculty  string
	keywords []string
}{
	{FacultyComputing, []string{"computer", "computing", "information technology", "information system", "software", "ict", "network", "data science"}},
	{FacultyEngineering, []string{"engineering", "mechanical", "civil", "electrical", "electronics", "mining", "architecture", "telecommunication", "technology"}},
	{FacultyBusiness, []string{"business", "accounting", "accountancy", "finance", "marketing", "procurement", "logistics", "management", "economics"}},
	{FacultyScience, []string{"science", "physics", "chemistry", "biology", "mathematics", "statistics", "laboratory"}},
	{FacultyHumanities, []string{"education", "law", "laws", "arts", "social", "humanities", "community", "languages"}},
}

// ClassifyFaculty maps a program name to the faculty that owns it.
func ClassifyFaculty(program string) string {
	p := " " + strings.ToLower(strings.TrimSpace(program)) + " "
	if strings.TrimSpace(p) == "" {
		return FacultyGeneral
	}
	for _, rule := range facultyRules {
		for _, kw := range rule.keywords {
			if containsWord(p, kw) {
				return rule.faculty
			}
		}
	}
	return FacultyGeneral
}

// containsWord matches kw at word boundaries so "ict" does not match "district".
func containsWord(haystack, kw string) bool {
	idx := strings.Index(haystack, kw)
	for idx >= 0 {
		before := haystack[idx-1]
		end := idx + len(kw)
		after := byte(' ')
		if end < len(haystack) {
			after = haystack[end]
		}
		if !isLetter(before) && !isLetter(after) {
			return true
		}
		next := strings.Index(haystack[idx+1:], kw)
		if next < 0 {
			return false
		}
		idx += next + 1
	}
	return false
}

func isLetter(b byte) bool { return b >= 'a' && b <= 'z' }
