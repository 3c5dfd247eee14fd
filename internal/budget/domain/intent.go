package domain

// IntentKind discriminates the ParsedIntent union.
type IntentKind string

const (
	IntentSetBudget IntentKind = "set_budget"
	IntentCommand   IntentKind = "command"
	IntentInvalid   IntentKind = "invalid"
)

// CommandWord is a recognized keyword command.
type CommandWord string

const (
	CommandStop  CommandWord = "STOP"
	CommandStart CommandWord = "START"
	CommandHelp  CommandWord = "HELP"
)

// ParsedIntent is the typed result of parsing one inbound message body.
// Exactly one of Amount/Command/RawText is meaningful, per Kind.
type ParsedIntent struct {
	Kind    IntentKind
	Amount  int64       // whole dollars, set when Kind == IntentSetBudget
	Command CommandWord // set when Kind == IntentCommand
	RawText string      // set when Kind == IntentInvalid
}

func SetBudgetIntent(amount int64) ParsedIntent {
	return ParsedIntent{Kind: IntentSetBudget, Amount: amount}
}

func CommandIntent(w CommandWord) ParsedIntent {
	return ParsedIntent{Kind: IntentCommand, Command: w}
}

func InvalidIntent(raw string) ParsedIntent {
	return ParsedIntent{Kind: IntentInvalid, RawText: raw}
}
