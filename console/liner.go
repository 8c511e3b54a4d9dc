package console

import (
	"os"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
)

const (
	HistoryFile = ".pkbench_history"
)

// Liner prompts on the terminal with line editing and a history file.
type Liner struct {
	line        *liner.State
	historyFile string
}

func NewLiner(historyFile string) *Liner {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	return &Liner{
		line:        line,
		historyFile: historyFile,
	}
}

func (l *Liner) Prompt(prompt string) (string, error) {
	s, err := l.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if s != "" {
		l.line.AppendHistory(s)
	}
	return s, nil
}

// PromptDefault shows def as editable text after the prompt.
func (l *Liner) PromptDefault(prompt, def string) (string, error) {
	return l.line.PromptWithSuggestion(prompt, def, -1)
}

func (l *Liner) Close() error {
	if l.historyFile != "" {
		if f, err := os.Create(l.historyFile); err != nil {
			log.WithFields(log.Fields{
				"file":  l.historyFile,
				"error": err.Error(),
			}).Error("writing history file")
		} else {
			l.line.WriteHistory(f)
			f.Close()
		}
	}
	return l.line.Close()
}
