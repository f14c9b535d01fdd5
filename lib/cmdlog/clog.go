package cmdlog

import (
	"log"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gotmc/caenhv"
)

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Raw is the part of *caenhv.Board the helpers need.
type Raw interface {
	Raw(line string) (string, error)
}

var _ Raw = (*caenhv.Board)(nil)

// PrettyFuncs returns helpers that send protocol lines to b and log the
// exchange: query returns the reply, bquery logs it, cmd only reports
// whether the board accepted the line.
func PrettyFuncs(b Raw) (
	query func(string) string,
	bquery func(string),
	cmd func(string),
) {
	query = func(q string) string {
		s, err := b.Raw(q)
		if err != nil {
			log.Printf("query %s: error %s", CmdStyle.Render(q), err)
		}
		return s
	}
	bquery = func(q string) {
		a := query(q)
		q = CmdStyle.Render(q)

		if len(a) == 0 {
			log.Printf("%s: %s", q, R1Style.Render("<no response>"))
			return
		}
		if resp, err := caenhv.ParseResponse(a); err == nil && resp.Err != nil {
			log.Printf("%s: %s", q, ErrStyle.Render(a))
			return
		}

		if isAscii(a) {
			log.Printf("%s: [%d] %s", q, len(a), R2Style.Render(a))
		} else {
			log.Printf("%s: [%d] %q (% 2x)", q, len(a), a, []byte(a))
		}
	}

	cmd = func(c string) {
		a, err := b.Raw(c)
		if err == nil {
			var resp caenhv.Response
			if resp, err = caenhv.ParseResponse(a); err == nil {
				err = resp.Err
			}
		}
		if err != nil {
			log.Printf("cmd %s: error %s", CmdStyle.Render(c), err)
		} else {
			log.Printf("%s()", CmdStyle.Render(c))
		}
	}
	return query, bquery, cmd
}
