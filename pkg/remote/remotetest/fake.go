// Package remotetest provides an in-memory remote.Service and an HTTP server
// speaking the same API in front of it.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/types"
)

// Method names accepted by Calls and Fail.
const (
	MethodListRepositories = "ListRepositories"
	MethodListDirectory    = "ListDirectory"
	MethodDownloadFile     = "DownloadFile"
	MethodUploadFile       = "UploadFile"
	MethodUpdateFile       = "UpdateFile"
	MethodCreateDirectory  = "CreateDirectory"
	MethodCreateFile       = "CreateFile"
	MethodSetPassword      = "SetPassword"
)

type dirState struct {
	id      string
	payload []byte
}

type fileState struct {
	id      string
	content []byte
}

type key struct {
	repoID string
	path   string
}

var _ remote.Service = (*Fake)(nil)

// Fake is a remote.Service holding repositories, directories and files in
// memory. Downloads are written to and uploads read from its Fs.
type Fake struct {
	Fs afero.Fs
	// ChunkSize is how many bytes a download writes between progress calls.
	ChunkSize int
	// EmptyUploadIDs makes uploads succeed without returning an id.
	EmptyUploadIDs bool

	mu        sync.Mutex
	repos     []byte
	dirs      map[key]dirState
	files     map[key]fileState
	passwords map[string]string
	unlocked  map[string]bool
	failures  map[string]error
	calls     map[string]int
	downloads int
	nextID    int
}

func NewFake(fs afero.Fs) *Fake {
	return &Fake{
		Fs:        fs,
		ChunkSize: 4,
		dirs:      map[key]dirState{},
		files:     map[key]fileState{},
		passwords: map[string]string{},
		unlocked:  map[string]bool{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

// SetRepos sets the raw repository listing. Nil makes the listing answer
// nothing.
func (f *Fake) SetRepos(raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos = raw
}

// SetRepoList sets the repository listing from records.
func (f *Fake) SetRepoList(repos ...model.Repository) {
	raw, err := json.Marshal(repos)
	if err != nil {
		panic(err)
	}
	f.SetRepos(raw)
}

// SetDir sets a directory's id and raw listing.
func (f *Fake) SetDir(repoID, dir, id string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[key{repoID, dir}] = dirState{id: id, payload: payload}
}

// SetDirents sets a directory's id and listing from records.
func (f *Fake) SetDirents(repoID, dir, id string, dirents ...model.Dirent) {
	if dirents == nil {
		dirents = []model.Dirent{}
	}
	f.SetDir(repoID, dir, id, mustMarshal(dirents))
}

// SetFile sets a file's id and content.
func (f *Fake) SetFile(repoID, filePath, id string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key{repoID, filePath}] = fileState{id: id, content: content}
}

// Remove deletes a directory or file, as if removed by another client.
func (f *Fake) Remove(repoID, p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dirs, key{repoID, p})
	delete(f.files, key{repoID, p})
}

// Lock makes the repository answer 440 until the password is set.
func (f *Fake) Lock(repoID, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[repoID] = password
	f.unlocked[repoID] = false
}

// Fail makes every later call to method return err. A nil err clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Calls returns how many times method has been called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Downloads counts file transfers, leaving out requests answered with
// "unchanged".
func (f *Fake) Downloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

func (f *Fake) countDownload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
}

// Dir returns what the server currently holds for a directory.
func (f *Fake) Dir(repoID, dir string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(repoID); err != nil {
		return "", nil, err
	}
	d, ok := f.dirs[key{repoID, dir}]
	if !ok {
		return "", nil, types.NewRemoteError(types.CodeNotFound, "Folder not found.")
	}
	return d.id, d.payload, nil
}

// File returns what the server currently holds for a file.
func (f *Fake) File(repoID, filePath string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(repoID); err != nil {
		return "", nil, err
	}
	fs, ok := f.files[key{repoID, filePath}]
	if !ok {
		return "", nil, types.NewRemoteError(types.CodeNotFound, "File not found.")
	}
	return fs.id, fs.content, nil
}

// Repos returns the raw repository listing.
func (f *Fake) Repos() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos
}

// Put stores content at dir/name, adds it to the parent listing and returns
// the new file id.
func (f *Fake) Put(repoID, dir, name string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(repoID); err != nil {
		return "", err
	}
	id := f.newID("file")
	f.files[key{repoID, path.Join(dir, name)}] = fileState{id: id, content: content}
	if err := f.addDirent(repoID, dir, model.Dirent{ID: id, Name: name, Type: "file", Size: int64(len(content))}); err != nil {
		return "", err
	}
	if f.EmptyUploadIDs {
		return "", nil
	}
	return id, nil
}

// Unlock checks a password and unlocks the repository on a match.
func (f *Fake) Unlock(repoID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, locked := f.passwords[repoID]
	if !locked {
		return nil
	}
	if want != password {
		return types.NewRemoteError(400, "Wrong password")
	}
	f.unlocked[repoID] = true
	return nil
}

// Create adds a directory or an empty file under parent and returns the
// parent's new id and listing.
func (f *Fake) Create(repoID, parent, name string, dir bool) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(repoID); err != nil {
		return "", nil, err
	}
	if _, ok := f.dirs[key{repoID, parent}]; !ok {
		return "", nil, types.NewRemoteError(types.CodeNotFound, "Parent folder not found.")
	}
	entry := model.Dirent{Name: name}
	if dir {
		entry.ID = f.newID("dir")
		entry.Type = model.DirentTypeDir
		f.dirs[key{repoID, path.Join(parent, name)}] = dirState{id: entry.ID, payload: []byte("[]")}
	} else {
		entry.ID = f.newID("file")
		entry.Type = "file"
		f.files[key{repoID, path.Join(parent, name)}] = fileState{id: entry.ID, content: []byte{}}
	}
	if err := f.addDirent(repoID, parent, entry); err != nil {
		return "", nil, err
	}
	d := f.dirs[key{repoID, parent}]
	return d.id, d.payload, nil
}

func (f *Fake) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.failures[method]
}

func (f *Fake) checkLocked(repoID string) error {
	if _, locked := f.passwords[repoID]; locked && !f.unlocked[repoID] {
		return types.NewRemoteError(types.CodePasswordRequired, "Library is encrypted.")
	}
	return nil
}

func (f *Fake) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// addDirent replaces or appends entry in the parent listing and gives the
// parent a new id. The parent is created when missing.
func (f *Fake) addDirent(repoID, parent string, entry model.Dirent) error {
	k := key{repoID, parent}
	var dirents []model.Dirent
	if d, ok := f.dirs[k]; ok && d.payload != nil {
		parsed, err := model.ParseDirents(d.payload)
		if err != nil {
			return err
		}
		dirents = parsed
	}
	replaced := false
	for i := range dirents {
		if dirents[i].Name == entry.Name {
			dirents[i] = entry
			replaced = true
		}
	}
	if !replaced {
		dirents = append(dirents, entry)
	}
	f.dirs[k] = dirState{id: f.newID("dir"), payload: mustMarshal(dirents)}
	return nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (f *Fake) ListRepositories(ctx context.Context) ([]byte, error) {
	if err := f.record(MethodListRepositories); err != nil {
		return nil, err
	}
	return f.Repos(), nil
}

func (f *Fake) ListDirectory(ctx context.Context, repoID, dir, hintDirID string) (string, []byte, error) {
	if err := f.record(MethodListDirectory); err != nil {
		return "", nil, err
	}
	id, payload, err := f.Dir(repoID, dir)
	if err != nil {
		return "", nil, err
	}
	if hintDirID != "" && id == hintDirID {
		return id, nil, nil
	}
	return id, payload, nil
}

func (f *Fake) DownloadFile(ctx context.Context, repoID, filePath, destPath, hintFileID string, sink remote.ProgressSink) (string, string, error) {
	if err := f.record(MethodDownloadFile); err != nil {
		return "", "", err
	}
	id, content, err := f.File(repoID, filePath)
	if err != nil {
		return "", "", err
	}
	if hintFileID != "" && id == hintFileID {
		return id, "", nil
	}
	if sink == nil {
		sink = remote.NopSink
	}
	f.countDownload()

	out, err := f.Fs.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", "", types.NewStorageError("create download file", destPath, err)
	}
	chunk := max(f.ChunkSize, 1)
	var written int64
	for written < int64(len(content)) || len(content) == 0 {
		if sink.IsCancelled() || ctx.Err() != nil {
			out.Close()
			f.Fs.Remove(destPath)
			return "", "", types.ErrCancelled
		}
		if len(content) == 0 {
			break
		}
		end := min(written+int64(chunk), int64(len(content)))
		if _, err := out.Write(content[written:end]); err != nil {
			out.Close()
			f.Fs.Remove(destPath)
			return "", "", types.NewStorageError("write download file", destPath, err)
		}
		written = end
		sink.OnProgress(written)
	}
	if err := out.Close(); err != nil {
		return "", "", types.NewStorageError("close download file", destPath, err)
	}
	return id, destPath, nil
}

func (f *Fake) UploadFile(ctx context.Context, repoID, dir, sourcePath string, sink remote.ProgressSink) (string, error) {
	if err := f.record(MethodUploadFile); err != nil {
		return "", err
	}
	return f.upload(repoID, dir, sourcePath, sink)
}

func (f *Fake) UpdateFile(ctx context.Context, repoID, dir, sourcePath string, sink remote.ProgressSink) (string, error) {
	if err := f.record(MethodUpdateFile); err != nil {
		return "", err
	}
	return f.upload(repoID, dir, sourcePath, sink)
}

func (f *Fake) upload(repoID, dir, sourcePath string, sink remote.ProgressSink) (string, error) {
	src, err := f.Fs.Open(sourcePath)
	if err != nil {
		return "", types.NewStorageError("open upload source", sourcePath, err)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return "", types.NewStorageError("read upload source", sourcePath, err)
	}
	if sink != nil {
		if sink.IsCancelled() {
			return "", types.ErrCancelled
		}
		sink.OnProgress(int64(len(content)))
	}
	return f.Put(repoID, dir, filepath.Base(sourcePath), content)
}

func (f *Fake) CreateDirectory(ctx context.Context, repoID, parentDir, name string) (string, []byte, error) {
	if err := f.record(MethodCreateDirectory); err != nil {
		return "", nil, err
	}
	return f.Create(repoID, parentDir, name, true)
}

func (f *Fake) CreateFile(ctx context.Context, repoID, parentDir, name string) (string, []byte, error) {
	if err := f.record(MethodCreateFile); err != nil {
		return "", nil, err
	}
	return f.Create(repoID, parentDir, name, false)
}

func (f *Fake) SetPassword(ctx context.Context, repoID, password string) error {
	if err := f.record(MethodSetPassword); err != nil {
		return err
	}
	return f.Unlock(repoID, password)
}
