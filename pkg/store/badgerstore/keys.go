package badgerstore

// Key layout
//
//	rd:<account>\x00<repoID>                repo dir mapping (JSON model.RepoDir)
//	rc:<account>\x00<path>                  claimed repo dir path -> repoID
//	de:<repoID>\x00<path>                   directory listing (JSON model.DirentsEntry)
//	fc:<account>\x00<repoID>\x00<path>      cached file (JSON model.CachedFile)
//
// NUL separates components since repository names and paths may contain
// any printable character.
const (
	prefixRepoDir    = "rd:"
	prefixRepoClaim  = "rc:"
	prefixDirents    = "de:"
	prefixCachedFile = "fc:"

	sep = "\x00"
)

func keyRepoDir(account, repoID string) []byte {
	return []byte(prefixRepoDir + account + sep + repoID)
}

func keyRepoDirPrefix(account string) []byte {
	return []byte(prefixRepoDir + account + sep)
}

func keyRepoClaim(account, path string) []byte {
	return []byte(prefixRepoClaim + account + sep + path)
}

func keyDirents(repoID, path string) []byte {
	return []byte(prefixDirents + repoID + sep + path)
}

func keyCachedFile(account, repoID, path string) []byte {
	return []byte(prefixCachedFile + account + sep + repoID + sep + path)
}

func keyCachedFilePrefix(account string) []byte {
	return []byte(prefixCachedFile + account + sep)
}
