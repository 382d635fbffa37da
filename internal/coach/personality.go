package coach

import (
	"hash/fnv"
	"strings"
)

// Personality selects the coach's voice.
type Personality string

const (
	Mentor        Personality = "mentor"
	DrillSergeant Personality = "drill_sergeant"
	Hype          Personality = "hype"
	Analyst       Personality = "analyst"
)

// ParsePersonality maps unknown values to Mentor.
func ParsePersonality(s string) Personality {
	switch p := Personality(strings.ToLower(strings.TrimSpace(s))); p {
	case Mentor, DrillSergeant, Hype, Analyst:
		return p
	default:
		return Mentor
	}
}

var systemPrompts = map[Personality]string{
	Mentor: "You are a calm, experienced indie hacker mentoring a solo founder. " +
		"Give practical, specific advice in under 120 words. Focus on shipping small and often.",
	DrillSergeant: "You are a no-nonsense drill sergeant coaching a solo founder who keeps procrastinating. " +
		"Be blunt and demanding, end with one concrete order for today. Under 100 words.",
	Hype: "You are an over-the-top hype coach for indie hackers. Be energetic and encouraging, " +
		"but still give one actionable next step. Under 100 words.",
	Analyst: "You are a data-driven startup analyst. Answer with metrics to watch, a short diagnosis " +
		"and a prioritized list of at most three actions. Under 150 words.",
}

var cannedAnswers = map[Personality][]string{
	Mentor: {
		"Pick the smallest version of this you could ship by Friday, then ship it. Feedback from real users beats another week of polish.",
		"Write down the one metric that would tell you this is working. If today's work doesn't move it, it can wait.",
		"Talk to three users before building the next feature. Their words will make the roadmap obvious.",
	},
	DrillSergeant: {
		"Stop planning. Open your editor, close every other tab and push one commit in the next hour. Move!",
		"Excuses don't ship products. Cut the scope in half and deploy before you sleep tonight.",
		"Your streak doesn't care how you feel. Ship something today, soldier.",
	},
	Hype: {
		"You're closer than you think! Ship the rough version today and let the internet tell you what to fix next!",
		"Every legendary product started ugly. Post your progress publicly today and ride that momentum!",
		"Your streak is your superpower. Keep it alive with one small win today!",
	},
	Analyst: {
		"Track activation rate, week-one retention and MRR growth. If retention is under 20%, fix onboarding before acquiring more users.",
		"Compare time spent per feature against revenue impact. Drop or defer anything in the bottom quartile.",
		"Measure conversion at each funnel step. The biggest drop-off is your next sprint.",
	},
}

// Canned picks a stable answer for the question so repeated asks agree.
func Canned(question string, p Personality) string {
	answers := cannedAnswers[ParsePersonality(string(p))]
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))
	return answers[h.Sum32()%uint32(len(answers))]
}
