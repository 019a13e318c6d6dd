package scraper

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bracket-rankings/internal/domain"

	"github.com/rs/zerolog"
)

var ErrBracketNotFound = errors.New("bracket not found")

var tioDateLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type tioPlayer struct {
	ID       string `xml:"ID"`
	Nickname string `xml:"Nickname"`
}

type tioGame struct {
	Name  string `xml:"Name"`
	Inner []byte `xml:",innerxml"`
}

type tioMatch struct {
	Player1 string `xml:"Player1"`
	Player2 string `xml:"Player2"`
	Winner  string `xml:"Winner"`
}

// ParseTIO reads a TIO bracket file and extracts the matches of the named bracket.
// Players and games are collected wherever they appear in the document.
func ParseTIO(r io.Reader, bracket string, logger zerolog.Logger) (*Bracket, error) {
	var (
		name, startDate string
		players         = map[string]string{}
		games           []tioGame
		stack           []string
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tio file: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			switch {
			case el.Name.Local == "Player":
				var p tioPlayer
				if err := dec.DecodeElement(&p, &el); err != nil {
					return nil, fmt.Errorf("failed to decode tio player: %w", err)
				}
				players[strings.TrimSpace(p.ID)] = strings.TrimSpace(p.Nickname)
			case el.Name.Local == "Game":
				var g tioGame
				if err := dec.DecodeElement(&g, &el); err != nil {
					return nil, fmt.Errorf("failed to decode tio game: %w", err)
				}
				games = append(games, g)
			case parent == "Event" && el.Name.Local == "Name":
				if err := dec.DecodeElement(&name, &el); err != nil {
					return nil, err
				}
			case parent == "Event" && el.Name.Local == "StartDate":
				if err := dec.DecodeElement(&startDate, &el); err != nil {
					return nil, err
				}
			default:
				stack = append(stack, el.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var game *tioGame
	for i := range games {
		if strings.TrimSpace(games[i].Name) == bracket {
			game = &games[i]
			break
		}
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %q", ErrBracketNotFound, bracket)
	}

	matches, err := tioMatches(game.Inner)
	if err != nil {
		return nil, err
	}

	var aliasMatches []domain.AliasMatch
	for _, m := range matches {
		p1, p2, winnerID := strings.TrimSpace(m.Player1), strings.TrimSpace(m.Player2), strings.TrimSpace(m.Winner)
		loserID := p2
		if winnerID == p2 {
			loserID = p1
		}

		winner, okW := players[winnerID]
		loser, okL := players[loserID]
		if !okW || !okL || winner == "" || loser == "" {
			logger.Warn().
				Str("player1", p1).
				Str("player2", p2).
				Msg("could not find players for tio match, skipping")
			continue
		}
		aliasMatches = append(aliasMatches, domain.AliasMatch{Winner: winner, Loser: loser})
	}

	date, err := parseTIODate(startDate)
	if err != nil {
		return nil, err
	}

	return newBracket(strings.TrimSpace(name), date, "", nil, aliasMatches), nil
}

func tioMatches(inner []byte) ([]tioMatch, error) {
	var matches []tioMatch
	dec := xml.NewDecoder(strings.NewReader(string(inner)))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return matches, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tio bracket: %w", err)
		}
		if el, ok := tok.(xml.StartElement); ok && el.Name.Local == "Match" {
			var m tioMatch
			if err := dec.DecodeElement(&m, &el); err != nil {
				return nil, fmt.Errorf("failed to decode tio match: %w", err)
			}
			matches = append(matches, m)
		}
	}
}

func parseTIODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range tioDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized tio start date %q", s)
}
