// Package ambiguity decides whether a banking question is specific enough to
// turn into a query, and which follow-up questions to ask when it is not.
package ambiguity

import (
	"fmt"
	"sort"
	"strings"
)

// MaxQuestions caps the follow-up questions returned for one request.
const MaxQuestions = 2

const (
	explainClear     = "Query appears clear"
	explainContinued = "Query enhanced with user clarifications or proceeding with smart defaults"
	explainBrief     = "Your query is quite brief - a bit more detail would help me give you better results."
)

var briefQuestions = []string{
	"What specific information are you looking for?",
	"Any particular time period or amount range?",
}

// actionVerbs exempt short requests from the brevity rule.
var actionVerbs = []string{"show", "find", "list", "display"}

// Term is a trigger word and what to ask when it appears.
type Term struct {
	Word        string
	Explanation string
	Questions   []string
}

// Terms is the trigger list in priority order: time, magnitude, identity,
// quantity, then the generic transactions catch-all.
var Terms = []Term{
	{
		Word:        "recent",
		Explanation: "I need to know what time period you consider 'recent'.",
		Questions: []string{
			"How recent? (e.g., 'last 7 days', 'last month', 'this year')",
			"Do you want the most recent items first?",
		},
	},
	{
		Word:        "old",
		Explanation: "Please specify what time period you consider 'old'.",
		Questions: []string{
			"How far back should I look? (e.g., '6 months ago', 'last year', 'older than 2 years')",
			"Should I include closed/inactive records?",
		},
	},
	{
		Word:        "large",
		Explanation: "I need to know what dollar amount you consider 'large'.",
		Questions: []string{
			"What amount would you consider large? (e.g., 'over $1,000', 'more than $10,000')",
			"Are you looking at individual transactions or total amounts?",
		},
	},
	{
		Word:        "small",
		Explanation: "Please specify what you consider a 'small' amount.",
		Questions:   []string{"What's your threshold for small amounts? (e.g., 'under $100', 'less than $500')"},
	},
	{
		Word:        "high",
		Explanation: "Please clarify what threshold you consider 'high'.",
		Questions:   []string{"What range do you consider high? (e.g., 'over $50,000', 'more than $100,000')"},
	},
	{
		Word:        "low",
		Explanation: "Please specify what you consider 'low' values.",
		Questions:   []string{"What range do you consider low? (e.g., 'under $1,000', 'less than $5,000')"},
	},
	{
		Word:        "my",
		Explanation: "Please specify which of your accounts you're asking about.",
		Questions:   []string{"Which account? (e.g., 'checking', 'savings', 'all accounts')"},
	},
	{
		Word:        "john",
		Explanation: "There may be multiple customers named John - I need more specific identification.",
		Questions: []string{
			"Which John? (Please provide last name or customer ID)",
			"Is this first name, last name, or part of the full name?",
		},
	},
	{
		Word:        "smith",
		Explanation: "Smith is a common name - please provide more details for identification.",
		Questions:   []string{"Which Smith? (Please provide first name or customer ID)"},
	},
	{
		Word:        "many",
		Explanation: "Please specify what quantity you consider 'many'.",
		Questions:   []string{"How many would you consider 'many'? (e.g., 'more than 10', 'over 50')"},
	},
	{
		Word:        "few",
		Explanation: "Please clarify what you consider 'few' items.",
		Questions:   []string{"What number range is 'few' to you? (e.g., '1-5', 'less than 10')"},
	},
	{
		Word:        "transactions",
		Explanation: "There are different types of transactions - please specify which ones you're interested in.",
		Questions:   []string{"What type of transactions? (e.g., 'all types', 'deposits only', 'withdrawals')"},
	},
}

// Context is the caller-owned conversation state for one turn.
//
// A nil Clarifications map means the caller has not shown a clarification
// prompt yet. Any non-nil map, even an empty one, means it has, and
// classification is skipped so a question is never asked twice.
type Context struct {
	PreviousQuery  string            `json:"previous_query,omitempty"`
	Clarifications map[string]string `json:"clarifications"`
	AdditionalInfo string            `json:"additional_info,omitempty"`
}

// Continued reports whether the turn follows a clarification prompt.
func (c *Context) Continued() bool {
	return c != nil && c.Clarifications != nil
}

// Result is the outcome of one classification.
type Result struct {
	Ambiguous   bool     `json:"is_ambiguous"`
	Explanation string   `json:"explanation"`
	Questions   []string `json:"questions"`
}

// Classifier matches requests against an ordered term list.
type Classifier struct {
	terms []Term
}

// New returns a Classifier over terms, or over Terms when none are given.
func New(terms ...Term) *Classifier {
	if len(terms) == 0 {
		terms = Terms
	}
	return &Classifier{terms: terms}
}

// Classify reports whether text needs clarification. The first matching term
// in priority order wins. Matching is by substring of the lower-cased text.
func (c *Classifier) Classify(text string, ctx *Context) Result {
	if ctx.Continued() {
		return Result{Explanation: explainContinued, Questions: []string{}}
	}

	lower := strings.ToLower(text)
	for _, term := range c.terms {
		if strings.Contains(lower, term.Word) {
			return Result{
				Ambiguous:   true,
				Explanation: term.Explanation,
				Questions:   firstN(term.Questions, MaxQuestions),
			}
		}
	}

	words := strings.Fields(lower)
	if len(words) <= 3 && !startsWithAction(words) {
		return Result{
			Ambiguous:   true,
			Explanation: explainBrief,
			Questions:   firstN(briefQuestions, MaxQuestions),
		}
	}
	return Result{Explanation: explainClear, Questions: []string{}}
}

var defaultClassifier = New()

// Classify runs the default Classifier.
func Classify(text string, ctx *Context) Result {
	return defaultClassifier.Classify(text, ctx)
}

func startsWithAction(words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, verb := range actionVerbs {
		if words[0] == verb {
			return true
		}
	}
	return false
}

func firstN(qs []string, n int) []string {
	if len(qs) > n {
		qs = qs[:n]
	}
	out := make([]string, len(qs))
	copy(out, qs)
	return out
}

// Answer formats one clarification value.
func Answer(question, answer string) string {
	return fmt.Sprintf("%s Answer: %s", question, strings.TrimSpace(answer))
}

// Enhance builds the resubmitted request text from the original request and
// the given clarifications, ordered by key (Q1, Q2, ..., Q10).
func Enhance(original string, clarifications map[string]string) string {
	if len(clarifications) == 0 {
		return original + ". Use reasonable defaults for any ambiguous terms."
	}
	keys := make([]string, 0, len(clarifications))
	for k := range clarifications {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = clarifications[k]
	}
	return original + ". Additional context: " + strings.Join(vals, "; ")
}

// Resume pairs questions with the user's answers and returns the text and
// context for the follow-up turn. Blank answers are dropped; the returned
// context always marks the turn as continued.
func Resume(original string, questions, answers []string) (string, *Context) {
	clar := make(map[string]string)
	for i, q := range questions {
		if i >= len(answers) || strings.TrimSpace(answers[i]) == "" {
			continue
		}
		clar[fmt.Sprintf("Q%d", i+1)] = Answer(q, answers[i])
	}
	info := "User chose to proceed with original query"
	if len(clar) > 0 {
		info = fmt.Sprintf("User provided %d clarifications", len(clar))
	}
	return Enhance(original, clar), &Context{
		PreviousQuery:  original,
		Clarifications: clar,
		AdditionalInfo: info,
	}
}
