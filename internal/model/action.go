package model

type ActionType string

const (
	ActionCreateDir  ActionType = "CREATE_DIR"
	ActionCopyFile   ActionType = "COPY_FILE"
	ActionDeleteFile ActionType = "DELETE_FILE"
	ActionDeleteDir  ActionType = "DELETE_DIR"
)

// Action is one filesystem operation applied to the replica. Src is set
// only for ActionCopyFile.
type Action struct {
	Type ActionType `json:"type"`
	Src  string     `json:"src,omitempty"`
	Path string     `json:"path"`
}

type ActionCounts struct {
	Created int `json:"created"`
	Copied  int `json:"copied"`
	Deleted int `json:"deleted"`
}

func CountActions(actions []Action) ActionCounts {
	var c ActionCounts
	for _, a := range actions {
		switch a.Type {
		case ActionCreateDir:
			c.Created++
		case ActionCopyFile:
			c.Copied++
		case ActionDeleteFile, ActionDeleteDir:
			c.Deleted++
		}
	}

	return c
}

func (c ActionCounts) Total() int {
	return c.Created + c.Copied + c.Deleted
}
