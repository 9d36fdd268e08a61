package mailbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"

	"fluxmail/models"
	"fluxmail/utils"
)

// specialUseAttrs are the RFC 6154 mailbox attributes surfaced to clients
var specialUseAttrs = []string{`\All`, `\Archive`, `\Drafts`, `\Flagged`, `\Junk`, `\Sent`, `\Trash`}

// Conn is an authenticated IMAP connection handed to session callbacks.
// It must not be used after the callback returns.
type Conn struct {
	c         imapClient
	accountID uint64
}

func (c *Conn) selectFolder(folder string) (uint32, error) {
	status, err := c.c.Select(folder, true)
	if err != nil {
		if isTransportError(err) {
			return 0, utils.NetworkError("imap select", c.accountID, err)
		}
		return 0, utils.NotFound("imap select", c.accountID, fmt.Errorf("folder %q: %w", folder, err))
	}
	return status.Messages, nil
}

// Folders lists every mailbox and returns the hierarchy flattened depth-first
func (c *Conn) Folders() ([]models.Folder, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.c.List("", "*", mailboxes)
	}()

	var infos []*imap.MailboxInfo
	for mb := range mailboxes {
		infos = append(infos, mb)
	}
	if err := <-done; err != nil {
		return nil, utils.NetworkError("imap list", c.accountID, err)
	}

	return flattenFolders(buildFolderTree(infos)), nil
}

// FetchEnvelopes fetches envelope, flags, UID and internal date for the
// sequence range from:to. Results are in server order.
func (c *Conn) FetchEnvelopes(from, to uint32) ([]models.EmailSummary, error) {
	if from == 0 {
		from = 1
	}
	if to < from {
		return []models.EmailSummary{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(from, to)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.c.Fetch(seqset, items, messages)
	}()

	summaries := make([]models.EmailSummary, 0, to-from+1)
	for msg := range messages {
		summaries = append(summaries, summarize(msg))
	}
	if err := <-done; err != nil {
		return nil, utils.NetworkError("imap fetch", c.accountID, err)
	}
	return summaries, nil
}

// FetchRaw returns the full RFC 822 source of the message with uid without
// setting \Seen.
func (c *Conn) FetchRaw(uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.c.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		if raw != nil || readErr != nil || msg.Uid != uid {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			// servers answer BODY[] for BODY.PEEK[]; take the only section
			for _, literal := range msg.Body {
				body = literal
				break
			}
		}
		if body != nil {
			raw, readErr = io.ReadAll(body)
		}
	}

	if err := <-done; err != nil {
		return nil, utils.NetworkError("imap uid fetch", c.accountID, err)
	}
	if readErr != nil {
		return nil, utils.NetworkError("imap uid fetch", c.accountID, readErr)
	}
	if raw == nil {
		return nil, utils.NotFound("imap uid fetch", c.accountID, fmt.Errorf("uid %d", uid))
	}
	return raw, nil
}

func summarize(msg *imap.Message) models.EmailSummary {
	s := models.EmailSummary{
		UID:    msg.Uid,
		SeqNum: msg.SeqNum,
		Date:   msg.InternalDate,
		To:     []models.Address{},
	}
	if env := msg.Envelope; env != nil {
		s.Subject = env.Subject
		if len(env.From) > 0 {
			s.From = toAddress(env.From[0])
		}
		s.To = toAddresses(env.To)
		if !env.Date.IsZero() {
			s.Date = env.Date
		}
	}
	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			s.Seen = true
		case imap.FlaggedFlag:
			s.Flagged = true
		}
	}
	return s
}

func toAddress(a *imap.Address) models.Address {
	addr := a.MailboxName
	if a.HostName != "" {
		addr += "@" + a.HostName
	}
	return models.Address{Name: a.PersonalName, Address: addr}
}

func toAddresses(list []*imap.Address) []models.Address {
	out := make([]models.Address, 0, len(list))
	for _, a := range list {
		if a != nil {
			out = append(out, toAddress(a))
		}
	}
	return out
}

type folderNode struct {
	name     string
	path     string
	delim    string
	info     *imap.MailboxInfo
	children []*folderNode
}

// buildFolderTree nests the flat LIST response by hierarchy delimiter,
// synthesizing parents the server did not return. INBOX sorts first.
func buildFolderTree(infos []*imap.MailboxInfo) []*folderNode {
	var roots []*folderNode
	nodes := make(map[string]*folderNode)

	for _, info := range infos {
		parts := []string{info.Name}
		if info.Delimiter != "" {
			parts = strings.Split(info.Name, info.Delimiter)
		}

		var parent *folderNode
		for i, part := range parts {
			path := strings.Join(parts[:i+1], info.Delimiter)
			node, ok := nodes[path]
			if !ok {
				node = &folderNode{name: part, path: path, delim: info.Delimiter}
				nodes[path] = node
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.children = append(parent.children, node)
				}
			}
			parent = node
		}
		parent.info = info
	}

	for i, root := range roots {
		if strings.EqualFold(root.path, "INBOX") && i > 0 {
			copy(roots[1:i+1], roots[:i])
			roots[0] = root
			break
		}
	}
	return roots
}

func flattenFolders(roots []*folderNode) []models.Folder {
	folders := []models.Folder{}
	var walk func(nodes []*folderNode, depth int)
	walk = func(nodes []*folderNode, depth int) {
		for _, n := range nodes {
			folders = append(folders, models.Folder{
				Name:       n.name,
				Path:       n.path,
				Delimiter:  n.delim,
				Depth:      depth,
				SpecialUse: specialUse(n),
				NoSelect:   n.info == nil || hasAttr(n.info.Attributes, `\Noselect`),
			})
			walk(n.children, depth+1)
		}
	}
	walk(roots, 0)
	return folders
}

func specialUse(n *folderNode) string {
	if strings.EqualFold(n.path, "INBOX") {
		return `\Inbox`
	}
	if n.info == nil {
		return ""
	}
	for _, attr := range specialUseAttrs {
		if hasAttr(n.info.Attributes, attr) {
			return attr
		}
	}
	return ""
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}
