package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// Server folder ids of the two dialog lists.
const (
	mainFolderID    = 0
	archiveFolderID = 1
)

var errListExhausted = &backend.Error{Code: backend.CodeNotFound, Message: "CHAT_LIST_EXHAUSTED"}

// pager walks one dialog list in server order. pinned counts the pinned
// dialogs seen so far, which all come first.
type pager struct {
	iter   *dialogs.Iterator
	pinned int
}

func (b *Backend) LoadChats(ctx context.Context, list domain.ListKind, limit int) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	if list.IsFolder() {
		return b.loadFolder(ctx, api, list.FolderID)
	}

	p := b.pager(api, list.Type, limit)
	for n := 0; n < limit; n++ {
		if !p.iter.Next(ctx) {
			if err := p.iter.Err(); err != nil {
				return requestError(err)
			}
			return errListExhausted
		}
		b.onDialog(list, p, p.iter.Value())
	}
	return nil
}

func (b *Backend) pager(api *tg.Client, kind domain.ListType, batch int) *pager {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pagers[kind]; ok {
		return p
	}
	folderID := mainFolderID
	if kind == domain.ListArchive {
		folderID = archiveFolderID
	}
	q := dialogs.QueryFunc(func(ctx context.Context, req dialogs.Request) (tg.MessagesDialogsClass, error) {
		r := &tg.MessagesGetDialogsRequest{
			Limit:      req.Limit,
			OffsetDate: req.OffsetDate,
			OffsetID:   req.OffsetID,
			OffsetPeer: req.OffsetPeer,
		}
		r.SetFolderID(folderID)
		return api.MessagesGetDialogs(ctx, r)
	})
	p := &pager{iter: dialogs.NewIterator(q, batch)}
	b.pagers[kind] = p
	return p
}

func (b *Backend) onDialog(list domain.ListKind, p *pager, elem dialogs.Elem) {
	d, ok := elem.Dialog.(*tg.Dialog)
	if !ok {
		return
	}
	if pu, ok := d.Peer.(*tg.PeerUser); ok {
		if u, ok := elem.Entities.User(pu.UserID); ok {
			b.emit(backend.UpdateUser{User: convertUser(u)})
		}
	}

	pinIndex := -1
	if d.Pinned {
		pinIndex = p.pinned
		p.pinned++
	}
	b.newChat(d, elem.Peer, elem.Last, elem.Entities, list, pinIndex)
}

// newChat registers a dialog and announces it placed in list. A negative
// pinIndex means the dialog is not pinned there.
func (b *Backend) newChat(d *tg.Dialog, input tg.InputPeerClass, last tg.NotEmptyMessage, ents peer.Entities, list domain.ListKind, pinIndex int) {
	id, ok := chatIDFromPeer(d.Peer)
	if !ok {
		return
	}
	date := 0
	if m, ok := last.(interface{ GetDate() int }); ok {
		date = m.GetDate()
	}
	meta, _ := b.reg.update(id, func(m *chatMeta) {
		if input != nil {
			m.peer = input
		}
		m.list = list
		m.order = dateOrder(date, d.TopMessage)
		m.pinned = pinIndex >= 0
		if m.pinned {
			m.pinOrder = pinnedOrder(pinIndex)
		}
		m.readInbox = domain.MessageID(d.ReadInboxMaxID)
		m.unread = d.UnreadCount
	})
	if d.TopMessage != 0 {
		b.reg.noteMessage(id, d.TopMessage)
	}
	b.emit(backend.UpdateNewChat{Chat: convertDialog(d, last, ents, b.selfUser(), meta.position())})
}

// refreshFolders reloads the folder list and publishes it.
func (b *Backend) refreshFolders(ctx context.Context, api *tg.Client) error {
	res, err := api.MessagesGetDialogFilters(ctx)
	if err != nil {
		return requestError(err)
	}
	b.mu.Lock()
	b.filters = res.Filters
	b.loaded = make(map[int]bool)
	b.mu.Unlock()

	folders, mainPos := convertFilters(res.Filters)
	b.emit(backend.UpdateChatFolders{Folders: folders, MainChatListPosition: mainPos})
	return nil
}

// convertFilters lists user folders in display order. The default filter
// marks where the main list sits; without one it comes first.
func convertFilters(filters []tg.DialogFilterClass) ([]domain.FolderInfo, int) {
	var (
		out     []domain.FolderInfo
		mainPos int
	)
	for _, raw := range filters {
		if _, ok := raw.(*tg.DialogFilterDefault); ok {
			mainPos = len(out)
			continue
		}
		f, ok := folderFilter(raw)
		if !ok {
			continue
		}
		out = append(out, f.info)
	}
	return out, mainPos
}

type filter struct {
	info    domain.FolderInfo
	pinned  []tg.InputPeerClass
	include []tg.InputPeerClass
}

func folderFilter(raw tg.DialogFilterClass) (filter, bool) {
	var f filter
	var title tg.TextWithEntities
	switch v := raw.(type) {
	case *tg.DialogFilter:
		f.info = domain.FolderInfo{ID: v.ID, Icon: v.Emoticon}
		title, f.pinned, f.include = v.Title, v.PinnedPeers, v.IncludePeers
	case *tg.DialogFilterChatlist:
		f.info = domain.FolderInfo{ID: v.ID, Icon: v.Emoticon}
		title, f.pinned, f.include = v.Title, v.PinnedPeers, v.IncludePeers
	default:
		return filter{}, false
	}
	f.info.Title = strings.TrimSpace(title.Text)
	if f.info.Title == "" {
		f.info.Title = fmt.Sprintf("Folder %d", f.info.ID)
	}
	return f, true
}

// loadFolder places a folder's explicit chats in one go. Chats the account
// has not seen yet are fetched first. A second call reports the folder as
// exhausted. Rule-based members (all contacts, all groups) are not
// expanded.
func (b *Backend) loadFolder(ctx context.Context, api *tg.Client, id int) error {
	b.mu.Lock()
	done := b.loaded[id]
	var f filter
	found := false
	for _, raw := range b.filters {
		if cur, ok := folderFilter(raw); ok && cur.info.ID == id {
			f, found = cur, true
			break
		}
	}
	b.mu.Unlock()
	if done {
		return errListExhausted
	}
	if !found {
		return &backend.Error{Code: 400, Message: "FILTER_ID_INVALID"}
	}

	list := domain.FolderList(id)
	self := b.selfUser()
	var selfID int64
	if self != nil {
		selfID = self.ID
	}

	var missing []tg.InputDialogPeerClass
	for _, p := range append(append([]tg.InputPeerClass{}, f.pinned...), f.include...) {
		chatID, ok := chatIDFromInputPeer(p, selfID)
		if !ok {
			continue
		}
		if _, known := b.reg.meta(chatID); !known {
			missing = append(missing, &tg.InputDialogPeer{Peer: p})
		}
	}
	if len(missing) > 0 {
		if err := b.fetchDialogs(ctx, api, missing); err != nil {
			return err
		}
	}

	seen := make(map[domain.ChatID]bool)
	place := func(p tg.InputPeerClass, pinIndex int) {
		chatID, ok := chatIDFromInputPeer(p, selfID)
		if !ok || seen[chatID] {
			return
		}
		seen[chatID] = true
		meta, known := b.reg.meta(chatID)
		if !known {
			b.logger.Debug("Folder chat unavailable", zap.Int("folder", id), zap.Int64("chat_id", int64(chatID)))
			return
		}
		pos := domain.ChatPosition{List: list, Order: meta.order}
		if pinIndex >= 0 {
			pos.Order, pos.IsPinned = pinnedOrder(pinIndex), true
		}
		b.emit(backend.UpdateChatPosition{ChatID: chatID, Position: pos})
	}
	for i, p := range f.pinned {
		place(p, i)
	}
	for _, p := range f.include {
		place(p, -1)
	}

	b.mu.Lock()
	b.loaded[id] = true
	b.mu.Unlock()
	return nil
}

// fetchDialogs loads dialogs outside of list paging. They are announced in
// the list they belong to.
func (b *Backend) fetchDialogs(ctx context.Context, api *tg.Client, peers []tg.InputDialogPeerClass) error {
	res, err := api.MessagesGetPeerDialogs(ctx, peers)
	if err != nil {
		return requestError(err)
	}
	users, chats, channels := indexEntities(res.Users, res.Chats)
	b.reg.addEntities(users, chats, channels)
	ents := peer.NewEntities(users, chats, channels)

	last := lastMessages(res.Messages)
	for _, raw := range res.Dialogs {
		d, ok := raw.(*tg.Dialog)
		if !ok {
			continue
		}
		id, ok := chatIDFromPeer(d.Peer)
		if !ok {
			continue
		}
		list := domain.MainList()
		if folderID, ok := d.GetFolderID(); ok && folderID == archiveFolderID {
			list = domain.ArchiveList()
		}
		b.newChat(d, nil, last[id], ents, list, -1)
	}
	return nil
}

// lastMessages indexes the top messages of a dialogs response by chat.
func lastMessages(msgs []tg.MessageClass) map[domain.ChatID]tg.NotEmptyMessage {
	last := make(map[domain.ChatID]tg.NotEmptyMessage, len(msgs))
	for _, raw := range msgs {
		msg, ok := raw.AsNotEmpty()
		if !ok {
			continue
		}
		if id, ok := chatIDFromPeer(msg.GetPeerID()); ok {
			last[id] = msg
		}
	}
	return last
}

func (b *Backend) DeleteChatFolder(ctx context.Context, folderID int) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	if _, err := api.MessagesUpdateDialogFilter(ctx, &tg.MessagesUpdateDialogFilterRequest{ID: folderID}); err != nil {
		return requestError(err)
	}
	return b.refreshFolders(ctx, api)
}
