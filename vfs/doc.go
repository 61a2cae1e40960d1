// Package vfs provides the node model on top of nodefs backends.
//
// A Registry maps protocol names to backends. Nodes are lightweight
// handles addressed as "protocol://path"; they hold no open resources and
// resolve their backend on every call.
//
//	root, err := vfs.Open("mem:///", vfs.WithRegistry(reg))
//	if err != nil {
//	    return err
//	}
//	docs, err := root.Mkdir(ctx, "docs")
//	file, err := docs.CreateFile(ctx, "readme.md", []byte("# hi"))
//
// Listings can be pruned with filters. A filter added with recursive set
// applies to every descendant reached from the node it was added to:
//
//	root.AddFilter(vfs.HiddenFiles(), true)
//	files, err := root.ListFiles(ctx, true)
//
// Nodes of one tree share their filter state and are not safe for
// concurrent AddFilter and RemoveFilter calls.
package vfs
