package imap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tern-mail/mailcore"
)

// ACLRight is a single ACL right character (RFC 4314 §2).
type ACLRight rune

const (
	ACLRightLookup  ACLRight = 'l'
	ACLRightRead    ACLRight = 'r'
	ACLRightSeen    ACLRight = 's'
	ACLRightWrite   ACLRight = 'w'
	ACLRightInsert  ACLRight = 'i'
	ACLRightPost    ACLRight = 'p'
	ACLRightCreate  ACLRight = 'k'
	ACLRightDelete  ACLRight = 'x'
	ACLRightExpunge ACLRight = 't'
	ACLRightAdmin   ACLRight = 'a'
)

// ACLRights is a string of ACL right characters.
type ACLRights string

// Contains reports whether r includes right.
func (r ACLRights) Contains(right ACLRight) bool {
	return strings.ContainsRune(string(r), rune(right))
}

// ACLEntry is one identifier/rights pair from a GETACL response.
type ACLEntry struct {
	Identifier string
	Rights     ACLRights
}

// GetACL retrieves the access control list for mailbox (RFC 4314 §3.3).
func (s *Session) GetACL(mailbox string) ([]ACLEntry, error) {
	if !s.Caps.Has(CapACL) {
		return nil, fmt.Errorf("%w: server does not advertise ACL", mailcore.ErrServerRefused)
	}
	_, untagged, err := s.Command(CommandGetACL, mailboxNameArg(mailbox))
	if err != nil {
		return nil, err
	}
	var entries []ACLEntry
	for _, line := range untagged {
		if !strings.HasPrefix(line, "ACL ") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "ACL "))
		for i := 1; i+1 < len(fields); i += 2 {
			entries = append(entries, ACLEntry{Identifier: fields[i], Rights: ACLRights(fields[i+1])})
		}
	}
	return entries, nil
}

// DeleteACL removes identifier's rights on mailbox.
func (s *Session) DeleteACL(mailbox, identifier string) error {
	if !s.Caps.Has(CapACL) {
		return fmt.Errorf("%w: server does not advertise ACL", mailcore.ErrServerRefused)
	}
	args := mailboxNameArg(mailbox) + " " + quoteArg(identifier)
	_, _, err := s.Command(CommandDeleteACL, args)
	return err
}

// MyRights returns the caller's own rights on mailbox.
func (s *Session) MyRights(mailbox string) (ACLRights, error) {
	if !s.Caps.Has(CapACL) {
		return "", fmt.Errorf("%w: server does not advertise ACL", mailcore.ErrServerRefused)
	}
	_, untagged, err := s.Command(CommandMyRights, mailboxNameArg(mailbox))
	if err != nil {
		return "", err
	}
	for _, line := range untagged {
		if strings.HasPrefix(line, "MYRIGHTS ") {
			fields := strings.Fields(strings.TrimPrefix(line, "MYRIGHTS "))
			if len(fields) >= 2 {
				rights := ACLRights(fields[1])
				s.ACL[mailbox] = rights
				return rights, nil
			}
		}
	}
	return "", nil
}

// QuotaResource is a single quota resource usage/limit pair (RFC 9208).
type QuotaResource struct {
	Name  string
	Usage int64
	Limit int64
}

// GetQuota retrieves usage and limits for a quota root.
func (s *Session) GetQuota(root string) ([]QuotaResource, error) {
	if !s.Caps.Has(CapQuota) {
		return nil, fmt.Errorf("%w: server does not advertise QUOTA", mailcore.ErrServerRefused)
	}
	_, untagged, err := s.Command(CommandGetQuota, quoteArg(root))
	if err != nil {
		return nil, err
	}
	var resources []QuotaResource
	for _, line := range untagged {
		if !strings.HasPrefix(line, "QUOTA ") {
			continue
		}
		rest := strings.TrimPrefix(line, "QUOTA ")
		start := strings.IndexByte(rest, '(')
		end := strings.LastIndexByte(rest, ')')
		if start < 0 || end < 0 {
			continue
		}
		fields := strings.Fields(rest[start+1 : end])
		for i := 0; i+2 < len(fields); i += 3 {
			usage, _ := strconv.ParseInt(fields[i+1], 10, 64)
			limit, _ := strconv.ParseInt(fields[i+2], 10, 64)
			resources = append(resources, QuotaResource{Name: fields[i], Usage: usage, Limit: limit})
		}
	}
	return resources, nil
}

// Thread is a single node in a THREAD response tree.
type Thread struct {
	Num      uint32
	Children []Thread
}

// Sort runs a SORT command and returns the ordered sequence numbers/UIDs
// (RFC 5256).
func (s *Session) Sort(program string, searchCriteria string, uid bool) ([]uint32, error) {
	if !s.Caps.Has(CapSort) {
		return nil, fmt.Errorf("%w: server does not advertise SORT", mailcore.ErrServerRefused)
	}
	args := fmt.Sprintf("(%s) UTF-8 %s", program, searchCriteria)
	verb := CommandSort
	if uid {
		verb, args = CommandUID, CommandSort+" "+args
	}
	_, untagged, err := s.Command(verb, args)
	if err != nil {
		return nil, err
	}
	var nums []uint32
	for _, line := range untagged {
		if !strings.HasPrefix(line, "SORT") {
			continue
		}
		for _, f := range strings.Fields(strings.TrimPrefix(line, "SORT")) {
			if n, err := strconv.ParseUint(f, 10, 32); err == nil {
				nums = append(nums, uint32(n))
			}
		}
	}
	return nums, nil
}

// ID exchanges client/server identification fields (RFC 2971).
func (s *Session) ID(fields map[string]string) (map[string]string, error) {
	if !s.Caps.Has(CapID) {
		return nil, fmt.Errorf("%w: server does not advertise ID", mailcore.ErrServerRefused)
	}
	args := "NIL"
	if len(fields) > 0 {
		var parts []string
		for k, v := range fields {
			parts = append(parts, quoteArg(k)+" "+quoteArg(v))
		}
		args = "(" + strings.Join(parts, " ") + ")"
	}
	_, untagged, err := s.Command(CommandID, args)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string)
	for _, line := range untagged {
		if !strings.HasPrefix(line, "ID ") {
			continue
		}
		rest := strings.TrimPrefix(line, "ID ")
		if strings.EqualFold(rest, "NIL") {
			continue
		}
		start := strings.IndexByte(rest, '(')
		end := strings.LastIndexByte(rest, ')')
		if start < 0 || end < 0 {
			continue
		}
		fields := strings.Fields(rest[start+1 : end])
		for i := 0; i+1 < len(fields); i += 2 {
			result[strings.Trim(fields[i], "\"")] = strings.Trim(fields[i+1], "\"")
		}
	}
	return result, nil
}

// SetMetadata sets or removes a server/mailbox annotation (RFC 5464). A nil
// value removes the entry.
func (s *Session) SetMetadata(mailbox, entry string, value *string) error {
	if !s.Caps.Has(CapMetadata) {
		return fmt.Errorf("%w: server does not advertise METADATA", mailcore.ErrServerRefused)
	}
	valStr := "NIL"
	if value != nil {
		valStr = quoteArg(*value)
	}
	args := mailboxNameArg(mailbox) + " (" + quoteArg(entry) + " " + valStr + ")"
	_, _, err := s.Command(CommandSetMetadata, args)
	return err
}
