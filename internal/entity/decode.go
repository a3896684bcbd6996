package entity

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

var (
	addressType = reflect.TypeOf(chain.Address(""))
	roundIDType = reflect.TypeOf(round.ID(""))
	timeType    = reflect.TypeOf(time.Time{})
)

// DecodeModel decodes a raw model map into a typed struct. The indexer
// delivers numeric felts as hex strings, timestamps as unix seconds, and
// booleans as 0/1 felts; decode hooks normalize all of that.
func DecodeModel(m Model, target any) error {
	if m == nil {
		return fmt.Errorf("model is required")
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			addressHook,
			roundIDHook,
			unixTimeHook,
			feltNumberHook,
			feltBoolHook,
		),
	})
	if err != nil {
		return fmt.Errorf("build model decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	return nil
}

func addressHook(from, to reflect.Type, data any) (any, error) {
	if to != addressType || from.Kind() != reflect.String {
		return data, nil
	}
	return chain.NormalizeAddress(data.(string)), nil
}

func roundIDHook(from, to reflect.Type, data any) (any, error) {
	if to != roundIDType || from.Kind() != reflect.String {
		return data, nil
	}
	id, err := round.ParseID(data.(string))
	if err != nil {
		return nil, err
	}
	return id, nil
}

func unixTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		sec, err := parseFeltUint(v)
		if err != nil {
			return nil, err
		}
		if sec == 0 {
			return time.Time{}, nil
		}
		return time.Unix(int64(sec), 0).UTC(), nil
	case float64:
		if v == 0 {
			return time.Time{}, nil
		}
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		if v == 0 {
			return time.Time{}, nil
		}
		return time.Unix(v, 0).UTC(), nil
	case uint64:
		if v == 0 {
			return time.Time{}, nil
		}
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return data, nil
}

func feltNumberHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := parseFeltUint(data.(string))
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return data, nil
}

func feltBoolHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	s := strings.ToLower(strings.TrimSpace(data.(string)))
	switch s {
	case "", "0", "0x0", "false":
		return false, nil
	case "1", "0x1", "true":
		return true, nil
	}
	n, err := parseFeltUint(s)
	if err != nil {
		return nil, err
	}
	return n != 0, nil
}

// Uint reads a numeric model member, tolerating felt hex strings, decimal
// strings, and JSON numbers. Absent or malformed members read as zero.
func Uint(m Model, key string) uint64 {
	switch v := m[key].(type) {
	case string:
		n, err := parseFeltUint(v)
		if err != nil {
			return 0
		}
		return n
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case int:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case int64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case uint64:
		return v
	}
	return 0
}

func parseFeltUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return 0, fmt.Errorf("malformed numeric felt %q", s)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("numeric felt %q overflows uint64", s)
	}
	return n.Uint64(), nil
}
