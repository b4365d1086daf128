package domain

// CommandDef describes a slash command available in the terminal UI.
type CommandDef struct {
	Name        string
	Usage       string
	Description string
	Group       string // display group for /help
}

// CommandDefs is the single source of truth for all slash commands.
var CommandDefs = []CommandDef{
	// Data lookups
	{Name: "/history", Usage: "/history SYMBOL", Description: "show historical prices", Group: "data"},
	{Name: "/news", Usage: "/news SYMBOL", Description: "show latest company news", Group: "data"},
	{Name: "/prices", Usage: "/prices [SYMBOL...]", Description: "show latest stock prices", Group: "data"},
	{Name: "/update", Usage: "/update", Description: "refresh backend data for the selection", Group: "data"},
	{Name: "/export", Usage: "/export history|news|prices [SYMBOL...]", Description: "save a dataset as an xlsx file", Group: "data"},
	// Selection
	{Name: "/select", Usage: "/select SYMBOL...", Description: "toggle symbols in the selection", Group: "selection"},
	{Name: "/stocks", Usage: "/stocks", Description: "pick symbols from the stock list", Group: "selection"},
	{Name: "/clear", Usage: "/clear", Description: "clear the selection", Group: "selection"},
	{Name: "/fresh", Usage: "/fresh", Description: "toggle collecting fresh data with queries", Group: "selection"},
	// General
	{Name: "/health", Usage: "/health", Description: "re-check the backend connection", Group: "general"},
	{Name: "/config", Usage: "/config [show|set KEY VALUE|reset]", Description: "view or change preferences", Group: "general"},
	{Name: "/copy", Usage: "/copy", Description: "copy the last answer to the clipboard", Group: "general"},
	{Name: "/help", Usage: "/help", Description: "show this help", Group: "general"},
	{Name: "/exit", Usage: "/exit", Description: "quit finchat", Group: "general"},
}

// LookupCommand returns the definition for name, if any.
func LookupCommand(name string) (CommandDef, bool) {
	for _, c := range CommandDefs {
		if c.Name == name {
			return c, true
		}
	}
	return CommandDef{}, false
}

// CommandGroups defines the display order and labels for help groups.
var CommandGroups = []struct {
	Key   string
	Label string
}{
	{"data", "Data"},
	{"selection", "Selection"},
	{"general", "General"},
}
