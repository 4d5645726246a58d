package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tern-mail/mailcore"
	"github.com/tern-mail/mailcore/imap/wire"
)

// FetchItem is one FETCH data item name, as it appears inside the
// parenthesized item list of a FETCH command (RFC 9051 §6.4.5).
type FetchItem string

const (
	FetchItemFlags         FetchItem = "FLAGS"
	FetchItemEnvelope      FetchItem = "ENVELOPE"
	FetchItemBodyStructure FetchItem = "BODYSTRUCTURE"
	FetchItemInternalDate  FetchItem = "INTERNALDATE"
	FetchItemRFC822Size    FetchItem = "RFC822.SIZE"
	FetchItemUID           FetchItem = "UID"
)

// FetchMessageData is one message's worth of FETCH response data, parsed
// from the raw "<n> FETCH (...)" untagged lines a FETCH/UID FETCH command
// collects while it's outstanding.
type FetchMessageData struct {
	SeqNum        uint32
	UID           UID
	Flags         []Flag
	InternalDate  time.Time
	RFC822Size    int64
	Envelope      *mailcore.Envelope
	BodyStructure *BodyStructure
	BodySection   map[string][]byte
}

// Fetch issues FETCH/UID FETCH for set with the given item list (e.g.
// "(FLAGS UID ENVELOPE)" or "(BODY[] BODY[HEADER])") and parses every
// resulting untagged FETCH line.
func (s *Session) Fetch(set NumSet, items string, uid bool) ([]*FetchMessageData, error) {
	args := set.String() + " " + items
	verb := CommandFetch
	if uid {
		verb, args = CommandUID, CommandFetch+" "+args
	}
	_, untagged, err := s.Command(verb, args)
	if err != nil {
		return nil, err
	}

	var out []*FetchMessageData
	for _, line := range untagged {
		if _, rest, ok := strings.Cut(line, " "); !ok || !strings.HasPrefix(rest, "FETCH ") {
			continue
		}
		msg, err := parseFetchLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// parseFetchLine parses "<n> FETCH (...)", where dispatchNumeric has
// already rewritten the server's "<n> FETCH (...)" untagged response into
// exactly this shape.
func parseFetchLine(line string) (*FetchMessageData, error) {
	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx < 0 {
		return nil, fmt.Errorf("imap: malformed FETCH line %q", line)
	}
	seqNum, err := strconv.ParseUint(line[:spaceIdx], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("imap: malformed FETCH sequence number in %q: %w", line, err)
	}
	rest := strings.TrimSpace(line[spaceIdx+1:])
	rest = strings.TrimPrefix(rest, "FETCH ")
	rest = strings.TrimSpace(rest)

	msg := &FetchMessageData{SeqNum: uint32(seqNum)}
	dec := wire.NewDecoder(strings.NewReader(rest))
	err = dec.ReadList(func() error {
		name, err := readFetchItemName(dec)
		if err != nil {
			return err
		}
		return parseFetchItemValue(dec, name, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: parsing FETCH response: %v", mailcore.ErrProtocol, err)
	}
	return msg, nil
}

// readFetchItemName reads one FETCH item name, including the bracketed
// section suffix of BODY[...] items (which ReadAtom alone would stop at the
// '[').
func readFetchItemName(dec *wire.Decoder) (string, error) {
	name, err := dec.ReadAtom()
	if err != nil {
		return "", err
	}
	b, err := dec.PeekByte()
	if err != nil || b != '[' {
		return name, nil
	}

	var section strings.Builder
	section.WriteString(name)
	if err := dec.ExpectByte('['); err != nil {
		return "", err
	}
	section.WriteByte('[')
	for {
		c, err := dec.PeekByte()
		if err != nil {
			return "", err
		}
		if err := dec.ExpectByte(c); err != nil {
			return "", err
		}
		section.WriteByte(c)
		if c == ']' {
			break
		}
	}
	if pb, err := dec.PeekByte(); err == nil && pb == '<' {
		for {
			c, err := dec.PeekByte()
			if err != nil {
				return "", err
			}
			if err := dec.ExpectByte(c); err != nil {
				return "", err
			}
			section.WriteByte(c)
			if c == '>' {
				break
			}
		}
	}
	return section.String(), nil
}

func parseFetchItemValue(dec *wire.Decoder, name string, msg *FetchMessageData) error {
	if err := dec.ReadSP(); err != nil {
		return err
	}
	switch {
	case name == string(FetchItemFlags):
		flags, err := dec.ReadFlags()
		if err != nil {
			return err
		}
		msg.Flags = make([]Flag, len(flags))
		for i, f := range flags {
			msg.Flags[i] = Flag(f)
		}
	case name == string(FetchItemUID):
		n, err := dec.ReadNumber()
		if err != nil {
			return err
		}
		msg.UID = UID(n)
	case name == string(FetchItemRFC822Size):
		n, err := dec.ReadNumber64()
		if err != nil {
			return err
		}
		msg.RFC822Size = int64(n)
	case name == string(FetchItemInternalDate):
		s, err := dec.ReadQuotedString()
		if err != nil {
			return err
		}
		if t, err := time.Parse(InternalDateLayout, s); err == nil {
			msg.InternalDate = t
		}
	case name == string(FetchItemEnvelope):
		env, err := parseEnvelope(dec)
		if err != nil {
			return err
		}
		msg.Envelope = env
	case name == string(FetchItemBodyStructure) || name == "BODY":
		bs, err := parseBodyStructure(dec)
		if err != nil {
			return err
		}
		msg.BodyStructure = bs
	case strings.HasPrefix(name, "BODY["):
		data, isNil, err := dec.ReadNString()
		if err != nil {
			return err
		}
		if !isNil {
			if msg.BodySection == nil {
				msg.BodySection = make(map[string][]byte)
			}
			msg.BodySection[name] = []byte(data)
		}
	default:
		return skipValue(dec)
	}
	return nil
}

// skipValue consumes one value of unknown shape, for FETCH response items
// this client doesn't interpret (future extension data items) without
// desynchronizing the rest of the parenthesized list.
func skipValue(dec *wire.Decoder) error {
	b, err := dec.PeekByte()
	if err != nil {
		return err
	}
	if b == '(' {
		return dec.ReadList(func() error { return skipValue(dec) })
	}
	_, _, err = dec.ReadNString()
	return err
}

// parseEnvelope parses an ENVELOPE data item (RFC 9051 §7.5.2): a fixed
// 10-element list of date, subject, from, sender, reply-to, to, cc, bcc,
// in-reply-to, message-id.
func parseEnvelope(dec *wire.Decoder) (*mailcore.Envelope, error) {
	if err := dec.ExpectByte('('); err != nil {
		return nil, err
	}
	env := &mailcore.Envelope{}

	dateStr, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	if t, err := mailcore.ParseDate(dateStr); err == nil {
		env.Date = t
	}
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	subject, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	env.Subject = subject
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	fields := []*[]mailcore.Address{&env.From, &env.Sender, &env.ReplyTo, &env.To, &env.Cc, &env.Bcc}
	for _, f := range fields {
		addrs, err := parseAddressList(dec)
		if err != nil {
			return nil, err
		}
		*f = addrs
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
	}

	inReplyTo, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	env.InReplyTo = inReplyTo
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	messageID, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	env.MessageID = messageID

	if err := dec.ExpectByte(')'); err != nil {
		return nil, err
	}
	return env, nil
}

// parseAddressList parses an address-list: NIL, or a parenthesized list of
// (name adl mailbox host) address structures.
func parseAddressList(dec *wire.Decoder) ([]mailcore.Address, error) {
	b, err := dec.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if _, _, err := dec.ReadNString(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var addrs []mailcore.Address
	err = dec.ReadList(func() error {
		a, err := parseAddress(dec)
		if err != nil {
			return err
		}
		addrs = append(addrs, a)
		return nil
	})
	return addrs, err
}

func parseAddress(dec *wire.Decoder) (mailcore.Address, error) {
	var a mailcore.Address
	if err := dec.ExpectByte('('); err != nil {
		return a, err
	}
	name, _, err := dec.ReadNString()
	if err != nil {
		return a, err
	}
	a.Name = name
	if err := dec.ReadSP(); err != nil {
		return a, err
	}
	if _, _, err := dec.ReadNString(); err != nil { // adl, unused
		return a, err
	}
	if err := dec.ReadSP(); err != nil {
		return a, err
	}
	mailbox, _, err := dec.ReadNString()
	if err != nil {
		return a, err
	}
	a.Mailbox = mailbox
	if err := dec.ReadSP(); err != nil {
		return a, err
	}
	host, _, err := dec.ReadNString()
	if err != nil {
		return a, err
	}
	a.Host = host
	if err := dec.ExpectByte(')'); err != nil {
		return a, err
	}
	return a, nil
}

// parseBodyStructure parses a BODY/BODYSTRUCTURE data item (RFC 9051
// §7.5.2), recursing into multipart children.
func parseBodyStructure(dec *wire.Decoder) (*BodyStructure, error) {
	if err := dec.ExpectByte('('); err != nil {
		return nil, err
	}

	firstByte, err := dec.PeekByte()
	if err != nil {
		return nil, err
	}

	bs := &BodyStructure{}
	if firstByte == '(' {
		// multipart: a sequence of body structures followed by the
		// subtype, and then optional extension data.
		bs.Type = "multipart"
		for {
			b, err := dec.PeekByte()
			if err != nil {
				return nil, err
			}
			if b != '(' {
				break
			}
			child, err := parseBodyStructure(dec)
			if err != nil {
				return nil, err
			}
			bs.Children = append(bs.Children, *child)
			if b, err := dec.PeekByte(); err == nil && b == ' ' {
				if err := dec.ReadSP(); err != nil {
					return nil, err
				}
			}
		}
		subtype, _, err := dec.ReadNString()
		if err != nil {
			return nil, err
		}
		bs.Subtype = subtype
		// Remaining extension fields (params, disposition, language,
		// location) are optional and not needed for the viewer/save
		// pipeline's tree walk; consume whatever follows before ')'.
		for {
			b, err := dec.PeekByte()
			if err != nil {
				return nil, err
			}
			if b == ')' {
				break
			}
			if err := dec.ReadSP(); err != nil {
				return nil, err
			}
			if err := skipValue(dec); err != nil {
				return nil, err
			}
		}
		if err := dec.ExpectByte(')'); err != nil {
			return nil, err
		}
		return bs, nil
	}

	typ, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Type = typ
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}
	subtype, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Subtype = subtype
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	params, err := parseParamList(dec)
	if err != nil {
		return nil, err
	}
	bs.Params = params
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	id, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.ID = id
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	desc, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Description = desc
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	enc, _, err := dec.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Encoding = enc
	if err := dec.ReadSP(); err != nil {
		return nil, err
	}

	size, err := dec.ReadNumber()
	if err != nil {
		return nil, err
	}
	bs.Size = size

	// message/rfc822 and text/* carry extra fixed fields (envelope+body+
	// lines, or lines) before the closing paren / extension data; other
	// types go straight to extension data.
	if strings.EqualFold(typ, "message") && strings.EqualFold(subtype, "rfc822") {
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
		env, err := parseEnvelope(dec)
		if err != nil {
			return nil, err
		}
		bs.Envelope = env
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
		child, err := parseBodyStructure(dec)
		if err != nil {
			return nil, err
		}
		bs.BodyStructure = child
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
		lines, err := dec.ReadNumber()
		if err != nil {
			return nil, err
		}
		bs.Lines = lines
	} else if strings.EqualFold(typ, "text") {
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
		lines, err := dec.ReadNumber()
		if err != nil {
			return nil, err
		}
		bs.Lines = lines
	}

	for {
		b, err := dec.PeekByte()
		if err != nil {
			return nil, err
		}
		if b == ')' {
			break
		}
		if err := dec.ReadSP(); err != nil {
			return nil, err
		}
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	if err := dec.ExpectByte(')'); err != nil {
		return nil, err
	}
	return bs, nil
}

func parseParamList(dec *wire.Decoder) (map[string]string, error) {
	b, err := dec.PeekByte()
	if err != nil {
		return nil, err
	}
	if b != '(' {
		if _, _, err := dec.ReadNString(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	params := make(map[string]string)
	var key string
	i := 0
	err = dec.ReadList(func() error {
		val, _, err := dec.ReadNString()
		if err != nil {
			return err
		}
		if i%2 == 0 {
			key = val
		} else {
			params[key] = val
		}
		i++
		return nil
	})
	return params, err
}
