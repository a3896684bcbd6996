package round

import (
	"github.com/lyricsflip/lyricsflip-go/internal/chain"
)

// Placeholder values used when a card option fails to decode. A malformed
// card must degrade, never crash the session.
const (
	UnknownArtist = "Unknown Artist"
	ParseError    = "Parse Error"
)

// Option is one decoded answer option.
type Option struct {
	Artist string
	Title  string
}

// QuestionCard is one decoded trivia unit: a lyric and four answer options.
type QuestionCard struct {
	Lyric   string
	Options [4]Option
}

// DecodeCard decodes a raw contract card into display form. Individual
// option fields that fail to decode fall back to placeholders.
func DecodeCard(raw chain.RawCard) QuestionCard {
	card := QuestionCard{Lyric: raw.Lyric}
	for i, opt := range raw.Options {
		card.Options[i] = decodeOption(opt)
	}
	return card
}

func decodeOption(raw chain.RawOption) Option {
	opt := Option{}
	artist, err := chain.DecodeShortString(raw.Artist)
	if err != nil || artist == "" {
		opt.Artist = UnknownArtist
	} else {
		opt.Artist = artist
	}
	title, err := chain.DecodeShortString(raw.Title)
	if err != nil {
		opt.Title = ParseError
	} else {
		opt.Title = title
	}
	return opt
}

// EncodeAnswerOption re-encodes a decoded option for submission, truncating
// to the contract field cap.
func EncodeAnswerOption(opt Option) (chain.RawOption, error) {
	artist, err := chain.EncodeShortString(opt.Artist)
	if err != nil {
		return chain.RawOption{}, err
	}
	title, err := chain.EncodeShortString(opt.Title)
	if err != nil {
		return chain.RawOption{}, err
	}
	return chain.RawOption{Artist: artist, Title: title}, nil
}
