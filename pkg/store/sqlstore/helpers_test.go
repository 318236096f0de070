package sqlstore_test

import "github.com/storacha/mirror/pkg/model"

func modelEntry() model.DirentsEntry {
	return model.DirentsEntry{RepoID: "r1", Path: "/", DirID: "d1", Payload: "[]"}
}
