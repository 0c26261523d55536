package quizbank

import (
	"fmt"
	"strings"
)

// PromptRequest parameterizes one generation prompt.
type PromptRequest struct {
	Level      Level
	Interests  []string
	GameMode   string
	Difficulty string
	Count      int
	// Regenerate asks the model for content that differs from earlier output.
	Regenerate bool
	Seed       string
}

type modeTemplate struct {
	role           string
	task           string
	requirePassage bool
	focus          []string
	extraRules     []string
	example        string
}

var modeTemplates = map[string]modeTemplate{
	ModeVocabulary: {
		role: "a quiz creator",
		task: "vocabulary questions",
		focus: []string{
			"Vocabulary refers to a learner's understanding and correct use of words",
			"Questions must test vocabulary in context, where learners choose the correct word to complete a sentence",
			"Use context clues (e.g., contrast, definition, or example clues) to guide learners",
			"All sentences and words should be appropriate for %[1]s level learners",
			"Each question connects to user interests with varied scenarios",
		},
		example: `  {
    "question": "She was tired, ___ she went to bed early.",
    "options": ["but", "so", "because", "and"],
    "correctIndex": 1,
    "clue": "Look for a word that shows result or consequence.",
    "explanation": "The word 'so' shows the result of being tired."
  }`,
	},
	ModeGrammar: {
		role: "a grammar quiz creator",
		task: "grammar questions",
		focus: []string{
			"Grammar is the way words are put together to make correct sentences",
			"Activities: Fill-in-the-blank and Error Spotting",
			"Target common grammar issues like subject-verb agreement, tense usage, and misuse/omission of verbs",
			"Learners should practice identifying and correcting errors",
			"Each question must tie back to the learner's interests when possible, using different scenarios",
		},
		example: `  {
    "question": "He ___ to the market yesterday.",
    "options": ["go", "goes", "went", "gone"],
    "correctIndex": 2,
    "clue": "Think about the past tense form of the verb.",
    "explanation": "The past tense of 'go' is 'went'."
  }`,
	},
	ModeTranslation: {
		role: "a translation quiz creator",
		task: "Filipino to English translation questions",
		focus: []string{
			"Learners must translate Filipino words or short phrases into English",
			"Translate ONLY from Filipino to English, never from English to Filipino",
			"Activities: Word or short-phrase translation (input-based recall)",
			"Questions should connect to the learner's interests when possible",
			"Keep translations age-appropriate and aligned with everyday vocabulary",
		},
		extraRules: []string{
			"CRITICAL: AVOID SYNONYM ANSWERS",
			"- Each option must be DISTINCTLY DIFFERENT from the others",
			"- DO NOT include synonyms or similar meanings in the options",
			`- BAD example: "Bato" with options ["Stone", "Rock", "Pebble", "Boulder"] - these are all synonyms!`,
			`- GOOD example: "Bato" with options ["Tree", "Rock", "Water", "House"] - clearly different meanings`,
			"- Wrong answers should be completely unrelated words from different categories",
			"- This ensures only ONE correct answer without confusion",
		},
		example: `  {
    "question": "Translate to English: 'Aso'",
    "options": ["Cat", "Dog", "Bird", "Fish"],
    "correctIndex": 1,
    "clue": "This is a common pet that barks.",
    "explanation": "'Aso' means 'Dog' in English."
  }`,
	},
	ModeSentenceConstruction: {
		role: "a sentence construction quiz creator",
		task: "sentence construction questions",
		focus: []string{
			"A sentence is a grammatically complete string of words expressing a complete thought",
			"Learners often struggle with verb tenses, capitalization, and punctuation errors",
			"Present jumbled words that learners must rearrange into a grammatically correct sentence",
			"This helps learners improve syntax, word order, and logical flow of English grammar",
			"Each question must tie back to the learner's interests when possible, using different scenarios",
		},
		extraRules: []string{
			"CRITICAL: ONLY ONE VALID ARRANGEMENT",
			"- Exactly one option may be a correct English sentence",
			"- Wrong options must be clearly ungrammatical, not acceptable alternative word orders",
			"- Do not use word sets that can form more than one correct sentence",
		},
		example: `  {
    "question": "Rearrange the words: ['the', 'dog', 'brown', 'big', 'ran']",
    "options": ["The dog brown big ran.", "Big brown the dog ran.", "The big brown dog ran.", "Dog ran the big brown."],
    "correctIndex": 2,
    "clue": "Remember: adjectives come before the noun they describe.",
    "explanation": "The correct sentence is 'The big brown dog ran.' because adjectives should precede the noun in proper order."
  }`,
	},
	ModeReadingComprehension: {
		role:           "a reading comprehension quiz creator",
		task:           "reading comprehension questions",
		requirePassage: true,
		focus: []string{
			"Learners will read short passages tailored to their interests",
			"Passages must be simple, age-appropriate, and engaging for %[1]s level",
			"Each passage MUST be 2-4 sentences long",
			`Questions should check understanding of main idea, details, inference, and "what happens next"`,
			"Questions must tie back to the learner's interests when possible, using different stories and characters",
		},
		example: `  {
    "passage": "Anna loves basketball. She practices every afternoon after school.",
    "question": "What does Anna do after school?",
    "options": ["Studies math", "Plays basketball", "Goes shopping", "Cooks dinner"],
    "correctIndex": 1,
    "clue": "Check what the passage says Anna does in the afternoon.",
    "explanation": "The passage says Anna practices basketball after school."
  }`,
	},
}

// BuildPrompt renders the generation prompt for one game mode.
func BuildPrompt(req PromptRequest) (string, error) {
	tmpl, ok := modeTemplates[req.GameMode]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedGameMode, req.GameMode)
	}
	if req.Count <= 0 {
		return "", newValidationError("count", "must be positive, got %d", req.Count)
	}

	fields := "question, options (array of 4 strings), correctIndex (0-3), clue, explanation"
	if tmpl.requirePassage {
		fields = "passage, " + fields
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are %s for EngliQuest. Generate EXACTLY %d %s.\n\n", tmpl.role, req.Count, tmpl.task))

	sb.WriteString("CRITICAL JSON REQUIREMENTS:\n")
	sb.WriteString("- Return ONLY a valid JSON array\n")
	sb.WriteString("- NO markdown, NO code blocks, NO extra text\n")
	sb.WriteString("- Start with [ and end with ]\n")
	sb.WriteString(fmt.Sprintf("- EXACTLY %d questions\n", req.Count))
	sb.WriteString(fmt.Sprintf("- Each question MUST have: %s\n", fields))
	sb.WriteString("- No trailing commas after the last item\n\n")

	sb.WriteString(fmt.Sprintf("Target: %s - %s (%s) | Difficulty: %s\n",
		req.Level, levelDescription(req.Level), levelGuidelines(req.Level), req.Difficulty))
	sb.WriteString(fmt.Sprintf("Interests: %s\n\n", strings.Join(req.Interests, ", ")))

	sb.WriteString(fmt.Sprintf("%s Focus:\n", req.GameMode))
	for _, line := range tmpl.focus {
		if strings.Contains(line, "%[1]s") {
			line = fmt.Sprintf(line, req.Level)
		}
		sb.WriteString("- " + line + "\n")
	}
	sb.WriteString("- The clue is a hint shown BEFORE answering and must not reveal the answer\n")
	sb.WriteString("- The explanation is shown AFTER answering and must justify the correct option; do not repeat the clue\n\n")

	if len(tmpl.extraRules) > 0 {
		for _, line := range tmpl.extraRules {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Example format (follow EXACTLY):\n[\n")
	sb.WriteString(tmpl.example)
	sb.WriteString("\n]\n\n")

	if req.Regenerate {
		sb.WriteString("REGENERATION:\n")
		sb.WriteString("- This is a fresh set. Do NOT repeat questions, passages, sentences or answer options from any previous set\n")
		sb.WriteString("- Use new scenarios, characters and vocabulary\n")
		sb.WriteString(fmt.Sprintf("- Variation seed: %s (use it to vary your output; do not include it in the questions)\n\n", req.Seed))
	}

	sb.WriteString("IMPORTANT: Start your response with [ and end with ]. No text before or after.\n")
	sb.WriteString(fmt.Sprintf("Generate %d questions now:", req.Count))

	return sb.String(), nil
}

func levelDescription(level Level) string {
	switch level {
	case LevelA1:
		return "Beginner (Elementary English learners)"
	case LevelA2:
		return "Elementary (Pre-intermediate English learners)"
	case LevelB1:
		return "Threshold (Intermediate English learners)"
	case LevelB2:
		return "Vantage (Upper-intermediate English learners)"
	case LevelC1:
		return "Effective Operational Proficiency (Advanced English learners)"
	case LevelC2:
		return "Mastery (Proficient English users)"
	}
	return string(level)
}

func levelGuidelines(level Level) string {
	switch level {
	case LevelA1:
		return "simple grammar, everyday words, short explanations"
	case LevelA2:
		return "slightly more complex grammar, basic connectors, everyday contexts"
	case LevelB1:
		return "intermediate grammar, common idioms, workplace/school contexts, more detail in explanations"
	case LevelB2:
		return "upper-intermediate grammar, academic/workplace vocabulary, longer explanations with nuance"
	case LevelC1:
		return "advanced grammar, complex idioms, academic and professional vocabulary, nuanced explanations"
	case LevelC2:
		return "near-native proficiency, highly precise vocabulary, academic/technical contexts, very detailed explanations"
	}
	return ""
}
