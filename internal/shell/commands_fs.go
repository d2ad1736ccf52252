package shell

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"

	"github.com/marmos91/nfsh/internal/glob"
	"github.com/marmos91/nfsh/internal/nfs3"
	"github.com/marmos91/nfsh/internal/session"
)

const readdirCount = 8192

// cmdCd implements `cd [path]` (spec.md §4.5).
func cmdCd(s *Shell, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	return s.Session.Cd(path)
}

// cmdLcd implements `lcd [dir]`; a bare `lcd` goes to $HOME (spec.md §6
// "Environment: HOME is consulted by lcd with no argument").
func cmdLcd(s *Shell, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	} else if home := homeDir(); home != "" {
		dir = home
	}
	return s.Local.Lcd(dir)
}

// listDir issues repeated READDIR calls from cookie 0, accumulating names
// until eof (spec.md §4.5 "Directory enumeration").
func listDir(nfs *nfs3.Client, dirFH nfs3.FileHandle) ([]nfs3.DirEntry, error) {
	var all []nfs3.DirEntry
	var cookie, verf uint64
	for {
		entries, eof, newVerf, _, err := nfs.Readdir(dirFH, cookie, verf, readdirCount)
		if err != nil {
			if se, ok := err.(*nfs3.StatusError); ok {
				return all, session.NewProtocolError("READDIR", se.Status, nfs3.StatusName(se.Status))
			}
			return all, session.NewTransportError("READDIR", err)
		}
		all = append(all, entries...)
		verf = newVerf
		if eof || len(entries) == 0 {
			break
		}
		cookie = entries[len(entries)-1].Cookie
	}
	return all, nil
}

func requireMounted(s *Shell) error {
	if !s.Session.IsMounted() {
		return session.NewUserError("no remote file system mounted")
	}
	return nil
}

// cmdLs implements `ls [-l] [pattern]` (spec.md §4.5).
func cmdLs(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	long, pattern := parseLsArgs(args)

	entries, err := listDir(s.Session.NfsClient, s.Session.CwdHandle)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if glob.Match(pattern, e.Name) {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)

	if !long {
		fmt.Fprintln(s.Out, strings.Join(names, " "))
		return nil
	}

	table := tablewriter.NewWriter(s.Out)
	table.SetHeader([]string{"Mode", "Links", "UID", "GID", "Size", "Name"})
	for _, name := range names {
		fh, attr, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, name)
		if err != nil || attr == nil {
			table.Append([]string{"?", "?", "?", "?", "?", name})
			continue
		}
		_ = fh
		table.Append([]string{
			formatMode(attr.Type, attr.Mode),
			strconv.FormatUint(uint64(attr.Nlink), 10),
			strconv.FormatUint(uint64(attr.UID), 10),
			strconv.FormatUint(uint64(attr.GID), 10),
			strconv.FormatUint(attr.Size, 10),
			name,
		})
	}
	table.Render()
	return nil
}

func parseLsArgs(args []string) (long bool, pattern string) {
	pattern = "*"
	for _, a := range args {
		if a == "-l" {
			long = true
			continue
		}
		pattern = a
	}
	return long, pattern
}

func formatMode(fileType, mode uint32) string {
	var typeChar byte = '-'
	switch fileType {
	case nfs3.TypeDir:
		typeChar = 'd'
	case nfs3.TypeLnk:
		typeChar = 'l'
	case nfs3.TypeChr:
		typeChar = 'c'
	case nfs3.TypeBlk:
		typeChar = 'b'
	case nfs3.TypeFifo:
		typeChar = 'p'
	case nfs3.TypeSock:
		typeChar = 's'
	}
	return fmt.Sprintf("%c%03o", typeChar, mode&0o7777)
}

// cmdCat implements `cat <name>` (spec.md §4.5 "File read").
func cmdCat(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 1 {
		return session.NewUserError("usage: cat <name>")
	}
	fh, attr, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, args[0])
	if err != nil {
		return translateLookupErr(err)
	}
	if attr == nil || attr.Type != nfs3.TypeReg {
		return session.NewUserError("%s: not a regular file", args[0])
	}
	return readWhole(s, fh, attr.Size, s.Out)
}

func translateLookupErr(err error) error {
	if se, ok := err.(*nfs3.StatusError); ok {
		return session.NewProtocolError("LOOKUP", se.Status, nfs3.StatusName(se.Status))
	}
	return session.NewTransportError("LOOKUP", err)
}

func readWhole(s *Shell, fh nfs3.FileHandle, size uint64, w io.Writer) error {
	var offset uint64
	for offset < size {
		data, eof, _, err := s.Session.NfsClient.Read(fh, offset, s.Session.TransferSize)
		if err != nil {
			if se, ok := err.(*nfs3.StatusError); ok {
				return session.NewProtocolError("READ", se.Status, nfs3.StatusName(se.Status))
			}
			return session.NewTransportError("READ", err)
		}
		if _, err := w.Write(data); err != nil {
			return session.NewTransportError("local write", err)
		}
		offset += uint64(len(data))
		s.Session.Metrics.AddBytesTransferred("get", len(data))
		if eof {
			break
		}
		if len(data) == 0 {
			break // protocol anomaly: server returned no data without eof
		}
	}
	return nil
}

// cmdGet implements `get [-i] <pattern>` (spec.md §4.5 "Globbing").
func cmdGet(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	var skipPrompt bool
	var pattern string
	for _, a := range args {
		if a == "-i" {
			skipPrompt = true
			continue
		}
		pattern = a
	}
	if pattern == "" {
		return session.NewUserError("usage: get [-i] <pattern>")
	}

	entries, err := listDir(s.Session.NfsClient, s.Session.CwdHandle)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." || !glob.Match(pattern, e.Name) {
			continue
		}
		fh, attr, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, e.Name)
		if err != nil || attr == nil || attr.Type != nfs3.TypeReg {
			continue
		}
		if !skipPrompt && !s.confirm(e.Name + "?") {
			continue
		}
		dst, err := s.Local.Create(e.Name)
		if err != nil {
			fmt.Fprintf(s.Err, "%s: %s\n", e.Name, err)
			continue
		}
		err = readWhole(s, fh, attr.Size, dst)
		dst.Close()
		if err != nil {
			fmt.Fprintf(s.Err, "%s: %s\n", e.Name, err)
		}
	}
	return nil
}

// confirm prompts "name?" and requires a reply starting with y/Y (spec.md
// §4.5), backed by promptui's confirm prompt.
func (s *Shell) confirm(label string) bool {
	p := promptui.Prompt{Label: label, IsConfirm: true, Stdout: nopCloserWriter{s.Out}}
	_, err := p.Run()
	return err == nil
}

type nopCloserWriter struct{ w io.Writer }

func (n nopCloserWriter) Write(p []byte) (int, error) { return n.w.Write(p) }

// cmdPut implements `put [-c] <local file>` (spec.md §4.5 "File write").
func cmdPut(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	var explicitCommit bool
	var name string
	for _, a := range args {
		if a == "-c" {
			explicitCommit = true
			continue
		}
		name = a
	}
	if name == "" {
		return session.NewUserError("usage: put [-c] <local file>")
	}

	src, err := s.Local.Open(name)
	if err != nil {
		return session.NewUserError("%s: %s", name, err)
	}
	defer src.Close()

	mode := uint32(0644)
	if _, _, _, err := s.Session.NfsClient.Create(s.Session.CwdHandle, name, nfs3.CreateExclusive, nfs3.SetAttr{Mode: &mode}, 0); err != nil {
		fmt.Fprintf(s.Err, "create %s: %s (continuing, file may already exist)\n", name, err)
	}

	fh, attr, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, name)
	if err != nil {
		return translateLookupErr(err)
	}
	if attr != nil && attr.Type != nfs3.TypeReg {
		return session.NewUserError("%s: not a regular file on server", name)
	}

	buf := make([]byte, s.Session.TransferSize)
	var offset uint64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			_, _, _, _, err := s.Session.NfsClient.Write(fh, offset, buf[:n], nfs3.Unstable)
			if err != nil {
				if se, ok := err.(*nfs3.StatusError); ok {
					return session.NewProtocolError("WRITE", se.Status, nfs3.StatusName(se.Status))
				}
				return session.NewTransportError("WRITE", err)
			}
			offset += uint64(n)
			s.Session.Metrics.AddBytesTransferred("put", n)
		}
		if readErr != nil {
			break
		}
	}

	if explicitCommit {
		if _, _, err := s.Session.NfsClient.Commit(fh, 0, 0); err != nil {
			return session.NewTransportError("COMMIT", err)
		}
	}
	return nil
}

// cmdDf implements `df [-h]` via FSSTAT on cwd_handle.
func cmdDf(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	human := len(args) > 0 && args[0] == "-h"

	res, _, err := s.Session.NfsClient.Fsstat(s.Session.CwdHandle)
	if err != nil {
		if se, ok := err.(*nfs3.StatusError); ok {
			return session.NewProtocolError("FSSTAT", se.Status, nfs3.StatusName(se.Status))
		}
		return session.NewTransportError("FSSTAT", err)
	}

	if human {
		fmt.Fprintf(s.Out, "total %s, free %s, avail %s\n",
			humanize.Bytes(res.TotalBytes), humanize.Bytes(res.FreeBytes), humanize.Bytes(res.AvailBytes))
		return nil
	}
	fmt.Fprintf(s.Out, "total %d, free %d, avail %d\n", res.TotalBytes, res.FreeBytes, res.AvailBytes)
	return nil
}

// cmdAccess implements `access <path>` (SPEC_FULL.md §6.1, §6.7): LOOKUP
// the path from cwd_handle, then report the access bits ACCESS grants for
// the current credentials. Read-only; never touches cwd_handle (P7).
func cmdAccess(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 1 {
		return session.NewUserError("usage: access <path>")
	}
	fh, _, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, args[0])
	if err != nil {
		return translateLookupErr(err)
	}

	const all = nfs3.AccessRead | nfs3.AccessLookup | nfs3.AccessModify |
		nfs3.AccessExtend | nfs3.AccessDelete | nfs3.AccessExecute
	granted, _, err := s.Session.NfsClient.Access(fh, all)
	if err != nil {
		if se, ok := err.(*nfs3.StatusError); ok {
			return session.NewProtocolError("ACCESS", se.Status, nfs3.StatusName(se.Status))
		}
		return session.NewTransportError("ACCESS", err)
	}

	var bits []string
	for _, b := range []struct {
		mask uint32
		name string
	}{
		{nfs3.AccessRead, "read"},
		{nfs3.AccessLookup, "lookup"},
		{nfs3.AccessModify, "modify"},
		{nfs3.AccessExtend, "extend"},
		{nfs3.AccessDelete, "delete"},
		{nfs3.AccessExecute, "execute"},
	} {
		if granted&b.mask != 0 {
			bits = append(bits, b.name)
		}
	}
	fmt.Fprintf(s.Out, "%s: %s\n", args[0], strings.Join(bits, ","))
	return nil
}

// cmdPathconf implements `pathconf` (SPEC_FULL.md §6.1, §6.7): report
// link/name-length limits of cwd_handle.
func cmdPathconf(s *Shell, _ []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	res, _, err := s.Session.NfsClient.Pathconf(s.Session.CwdHandle)
	if err != nil {
		if se, ok := err.(*nfs3.StatusError); ok {
			return session.NewProtocolError("PATHCONF", se.Status, nfs3.StatusName(se.Status))
		}
		return session.NewTransportError("PATHCONF", err)
	}
	fmt.Fprintf(s.Out, "link_max=%d name_max=%d no_trunc=%t chown_restricted=%t case_insensitive=%t case_preserving=%t\n",
		res.LinkMax, res.NameMax, res.NoTrunc, res.ChownRestricted, res.CaseInsensitive, res.CasePreserving)
	return nil
}

// cmdRm implements `rm [-f] <name>`: prompts `name?` before deleting
// unless `-f` is given (SPEC_FULL.md §3, same promptui confirm style as
// `get`).
func cmdRm(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	force, name, err := parseForceAndName(args, "rm")
	if err != nil {
		return err
	}
	if !force && !s.confirm(name+"?") {
		return nil
	}
	_, err = s.Session.NfsClient.Remove(s.Session.CwdHandle, name)
	return wrapWccErr("REMOVE", err)
}

// cmdRmdir implements `rmdir [-f] <name>`, confirming the same way as rm.
func cmdRmdir(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	force, name, err := parseForceAndName(args, "rmdir")
	if err != nil {
		return err
	}
	if !force && !s.confirm(name+"?") {
		return nil
	}
	_, err = s.Session.NfsClient.Rmdir(s.Session.CwdHandle, name)
	return wrapWccErr("RMDIR", err)
}

func parseForceAndName(args []string, verb string) (force bool, name string, err error) {
	for _, a := range args {
		if a == "-f" {
			force = true
			continue
		}
		name = a
	}
	if name == "" {
		return false, "", session.NewUserError("usage: %s [-f] <name>", verb)
	}
	return force, name, nil
}

// cmdMkdir implements `mkdir <name>` (spec.md §4.5 "mkdir uses MKDIR with
// mode 040755"). sattr3's mode field carries permission bits only; the
// type bits from the traditional octal literal are not meaningful here.
func cmdMkdir(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 1 {
		return session.NewUserError("usage: mkdir <name>")
	}
	mode := uint32(0755)
	_, _, _, err := s.Session.NfsClient.Mkdir(s.Session.CwdHandle, args[0], nfs3.SetAttr{Mode: &mode})
	return wrapWccErr("MKDIR", err)
}

// cmdMknod implements `mknod <name> p|b|c [major minor]` (spec.md §4.5).
func cmdMknod(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) < 2 {
		return session.NewUserError("usage: mknod <name> p|b|c [major minor]")
	}
	name, kind := args[0], args[1]
	mode := uint32(0777)
	attrs := nfs3.SetAttr{Mode: &mode}

	var fileType uint32
	var major, minor uint32
	switch kind {
	case "p":
		fileType = nfs3.TypeFifo
	case "b", "c":
		if len(args) != 4 {
			return session.NewUserError("usage: mknod <name> %s <major> <minor>", kind)
		}
		if kind == "b" {
			fileType = nfs3.TypeBlk
		} else {
			fileType = nfs3.TypeChr
		}
		maj, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return session.NewUserError("%s: not a number", args[2])
		}
		min, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			return session.NewUserError("%s: not a number", args[3])
		}
		major, minor = uint32(maj), uint32(min)
	default:
		return session.NewUserError("%s: unknown node type (expected p, b, or c)", kind)
	}

	_, _, _, err := s.Session.NfsClient.Mknod(s.Session.CwdHandle, name, fileType, attrs, major, minor)
	return wrapWccErr("MKNOD", err)
}

func cmdMv(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 2 {
		return session.NewUserError("usage: mv <from> <to>")
	}
	_, _, err := s.Session.NfsClient.Rename(s.Session.CwdHandle, args[0], s.Session.CwdHandle, args[1])
	return wrapWccErr("RENAME", err)
}

func cmdLn(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 2 {
		return session.NewUserError("usage: ln <existing> <new>")
	}
	fh, _, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, args[0])
	if err != nil {
		return translateLookupErr(err)
	}
	_, _, err = s.Session.NfsClient.Link(fh, s.Session.CwdHandle, args[1])
	return wrapWccErr("LINK", err)
}

// cmdChmod implements `chmod <mode> <name>`: sets only mode, unconditional
// SETATTR (spec.md §4.5 "Attribute mutation").
func cmdChmod(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 2 {
		return session.NewUserError("usage: chmod <mode> <name>")
	}
	n, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		return session.NewUserError("%s: not an octal mode", args[0])
	}
	mode := uint32(n)

	fh, _, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, args[1])
	if err != nil {
		return translateLookupErr(err)
	}
	_, err = s.Session.NfsClient.Setattr(fh, nfs3.SetAttr{Mode: &mode}, nil)
	return wrapWccErr("SETATTR", err)
}

// cmdChown implements `chown <uid>[:<gid>] <name>`: bare uid leaves gid
// unset (spec.md §4.5).
func cmdChown(s *Shell, args []string) error {
	if err := requireMounted(s); err != nil {
		return err
	}
	if len(args) != 2 {
		return session.NewUserError("usage: chown <uid>[:<gid>] <name>")
	}

	spec := args[0]
	var attrs nfs3.SetAttr
	uidStr, gidStr, hasGid := strings.Cut(spec, ":")
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return session.NewUserError("%s: not a uid", uidStr)
	}
	u := uint32(uid)
	attrs.UID = &u
	if hasGid {
		gid, err := strconv.ParseUint(gidStr, 10, 32)
		if err != nil {
			return session.NewUserError("%s: not a gid", gidStr)
		}
		g := uint32(gid)
		attrs.GID = &g
	}

	fh, _, _, err := s.Session.NfsClient.Lookup(s.Session.CwdHandle, args[1])
	if err != nil {
		return translateLookupErr(err)
	}
	_, err = s.Session.NfsClient.Setattr(fh, attrs, nil)
	return wrapWccErr("SETATTR", err)
}

func wrapWccErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*nfs3.StatusError); ok {
		return session.NewProtocolError(op, se.Status, nfs3.StatusName(se.Status))
	}
	return session.NewTransportError(op, err)
}

func homeDir() string {
	return os.Getenv("HOME")
}
