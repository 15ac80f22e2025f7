package chatlist

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/notify"
)

// FolderList projects the main list and the folder lists into one flat,
// ordered sequence: the main list sits at MainPosition, folders fill the
// other slots in server order.
type FolderList struct {
	account account.Slot
	cfg     Config
	logger  *zap.Logger

	main         *List
	folders      []*List
	mainPosition int

	changes notify.Observers[notify.Change]
}

func NewFolderList(main *List, cfg Config) *FolderList {
	return &FolderList{
		account: main.Identity().Account,
		cfg:     cfg,
		logger:  cfg.Logger.Named("folders"),
		main:    main,
	}
}

// Subscribe registers fn for changes of the projection. Indexes are
// projected indexes.
func (f *FolderList) Subscribe(fn func(notify.Change)) (cancel func()) {
	return f.changes.Subscribe(fn)
}

func (f *FolderList) Main() *List { return f.main }

// Len is the number of projected entries, the main list included.
func (f *FolderList) Len() int { return len(f.folders) + 1 }

// MainPosition is the projected index of the main list.
func (f *FolderList) MainPosition() int {
	if f.mainPosition > len(f.folders) {
		return len(f.folders)
	}
	if f.mainPosition < 0 {
		return 0
	}
	return f.mainPosition
}

// At returns the list at projected index i.
func (f *FolderList) At(i int) *List {
	if i < 0 || i >= f.Len() {
		panic(fmt.Sprintf("chatlist: folder index %d out of range [0,%d)", i, f.Len()))
	}
	p := f.MainPosition()
	switch {
	case i == p:
		return f.main
	case i < p:
		return f.folders[i]
	default:
		return f.folders[i-1]
	}
}

// Folders returns the folder lists in server order.
func (f *FolderList) Folders() []*List {
	out := make([]*List, len(f.folders))
	copy(out, f.folders)
	return out
}

// Folder returns the tracked list of folderID.
func (f *FolderList) Folder(folderID int) (*List, bool) {
	if i := f.folderIndex(folderID); i >= 0 {
		return f.folders[i], true
	}
	return nil, false
}

// GetOrCreate returns the list of folderID, appending a new one if the folder
// is referenced before the folder configuration arrived.
func (f *FolderList) GetOrCreate(folderID int) *List {
	if l, ok := f.Folder(folderID); ok {
		return l
	}
	l := f.newFolder(folderID)
	f.folders = append(f.folders, l)
	f.changes.Emit(notify.Change{Kind: notify.Inserted, Index: f.project(len(f.folders) - 1)})
	return l
}

// HandleUpdate reconciles the tracked folders with the authoritative folder
// configuration. Removals are applied first, then every folder is placed at
// its new index reusing its existing list, then metadata is refreshed and
// finally the main list position is updated.
func (f *FolderList) HandleUpdate(folders []domain.FolderInfo, mainPosition int) {
	wanted := make(map[int]struct{}, len(folders))
	ordered := make([]domain.FolderInfo, 0, len(folders))
	for _, info := range folders {
		if _, dup := wanted[info.ID]; dup {
			f.logger.Warn("Duplicate folder in configuration", zap.Int("folder_id", info.ID))
			continue
		}
		wanted[info.ID] = struct{}{}
		ordered = append(ordered, info)
	}

	for i := 0; i < len(f.folders); {
		if _, ok := wanted[f.folders[i].FolderID()]; ok {
			i++
			continue
		}
		idx := f.project(i)
		removed := f.folders[i]
		f.folders = append(f.folders[:i], f.folders[i+1:]...)
		removed.Close()
		f.changes.Emit(notify.Change{Kind: notify.Removed, Index: idx})
	}

	for j, info := range ordered {
		k := f.folderIndex(info.ID)
		switch {
		case k == j:
		case k > j:
			from := f.project(k)
			l := f.folders[k]
			f.folders = append(f.folders[:k], f.folders[k+1:]...)
			f.insertAt(j, l)
			f.changes.Emit(notify.Change{Kind: notify.Moved, Index: from, To: f.project(j)})
		case k < 0:
			f.insertAt(j, f.newFolder(info.ID))
			f.changes.Emit(notify.Change{Kind: notify.Inserted, Index: f.project(j)})
		default:
			panic(fmt.Sprintf("chatlist: folder %d already placed at %d, expected %d", info.ID, k, j))
		}
	}

	for j, info := range ordered {
		if f.folders[j].SetMetadata(info.Title, info.Icon) {
			f.changes.Emit(notify.Change{Kind: notify.Updated, Index: f.project(j)})
		}
	}

	old := f.MainPosition()
	f.mainPosition = mainPosition
	if now := f.MainPosition(); now != old {
		f.changes.Emit(notify.Change{Kind: notify.MainPositionChanged, Index: old, To: now})
	}
}

// Close detaches the main list and every folder.
func (f *FolderList) Close() {
	f.main.Close()
	for _, l := range f.folders {
		l.Close()
	}
}

func (f *FolderList) newFolder(folderID int) *List {
	return New(Identity{Account: f.account, Kind: domain.FolderList(folderID)}, f.cfg)
}

func (f *FolderList) insertAt(i int, l *List) {
	f.folders = append(f.folders, nil)
	copy(f.folders[i+1:], f.folders[i:])
	f.folders[i] = l
}

func (f *FolderList) folderIndex(folderID int) int {
	for i, l := range f.folders {
		if l.FolderID() == folderID {
			return i
		}
	}
	return -1
}

// project maps a folder index to its projected index.
func (f *FolderList) project(folderIndex int) int {
	if folderIndex < f.MainPosition() {
		return folderIndex
	}
	return folderIndex + 1
}
