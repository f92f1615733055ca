package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/proto"
)

const consoleHelp = `Commands:
  user-add <name> <password>            create an account
  group-create <name> <right> <create>  create a group (right: NONE|READ|WRITE|READ_WRITE, create: true|false)
  group-add <user> <group>              move a user into a group
  file-add <path>                       track an existing file in the tree
  file-inform <path>                    push a file to all registered clients
  file-delete <path>                    delete a tracked file everywhere
  add-right <group> <right> <path>      grant a right on one file
  add-right-subtree <group> <right> <prefix>
                                        grant a right over a subtree
  remove-right <group> <right> <path>   revoke a right on one file
  save-db                               persist the catalog now
  load-db                               reload the catalog from disk
  exit                                  stop the server`

// RunConsole reads admin commands from in until "exit" or EOF. It is the
// operator's side channel into the catalog; every mutation it makes flows
// through the same ServerDB the sessions use.
func (s *Server) RunConsole(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" {
			s.Stop()
			return
		}
		if err := s.runConsoleCommand(fields[0], fields[1:]); err != nil {
			fmt.Printf("error: %s\n%s\n", err, consoleHelp)
		}
	}
}

func (s *Server) runConsoleCommand(cmd string, args []string) error {
	switch cmd {
	case "user-add":
		if len(args) != 2 {
			return fmt.Errorf("usage: user-add <name> <password>")
		}
		user := db.NewUser(args[0], db.SaltedDigest(args[0], db.Digest(args[1])))
		if !s.db.AddUser(user) {
			return fmt.Errorf("user %q already exists", args[0])
		}
	case "group-create":
		if len(args) != 3 {
			return fmt.Errorf("usage: group-create <name> <right> <create>")
		}
		canCreate := args[2] == "true"
		if !s.db.CreateNewGroup(args[0], db.ParseAccessRight(args[1]), canCreate) {
			return fmt.Errorf("group %q already exists", args[0])
		}
	case "group-add":
		if len(args) != 2 {
			return fmt.Errorf("usage: group-add <user> <group>")
		}
		s.db.MoveUserToGroup(args[0], args[1])
	case "file-add":
		if len(args) != 1 {
			return fmt.Errorf("usage: file-add <path>")
		}
		return s.consoleAddFile(args[0])
	case "file-inform":
		if len(args) != 1 {
			return fmt.Errorf("usage: file-inform <path>")
		}
		if !s.db.FileTracked(args[0]) {
			return fmt.Errorf("file %q is not tracked", args[0])
		}
		s.informAll(nil, proto.FileChanged, args[0])
	case "file-delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: file-delete <path>")
		}
		file, ok := s.db.TryGetFile(args[0])
		if !ok {
			return fmt.Errorf("file %q is not tracked", args[0])
		}
		s.deleteFile(file)
		s.informAll(nil, proto.FileDeleted, args[0])
	case "add-right":
		if len(args) != 3 {
			return fmt.Errorf("usage: add-right <group> <right> <path>")
		}
		if !s.db.AddRightToGroup(args[2], args[0], db.ParseAccessRight(args[1])) {
			return fmt.Errorf("file %q is not tracked", args[2])
		}
	case "add-right-subtree":
		if len(args) != 3 {
			return fmt.Errorf("usage: add-right-subtree <group> <right> <prefix>")
		}
		s.db.AddRightToSubtree(args[0], db.ParseAccessRight(args[1]), args[2])
	case "remove-right":
		if len(args) != 3 {
			return fmt.Errorf("usage: remove-right <group> <right> <path>")
		}
		if !s.db.RemoveRightFromGroup(args[2], args[0], db.ParseAccessRight(args[1])) {
			return fmt.Errorf("file %q is not tracked", args[2])
		}
	case "save-db":
		s.db.Save()
	case "load-db":
		if err := s.db.Load(); err != nil {
			return err
		}
	case "help":
		fmt.Println(consoleHelp)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	s.db.Save()
	return nil
}

// consoleAddFile registers a file that already exists in the tree without
// going through a client session. It gets the default group's rights only.
func (s *Server) consoleAddFile(path string) error {
	rel, ok := cleanPath(path)
	if !ok {
		return fmt.Errorf("path %q is outside the tree", path)
	}
	if s.db.FileTracked(rel) {
		return fmt.Errorf("file %q is already tracked", rel)
	}
	s.db.CreateNewFile(rel, nil, s.clock.Now())
	log.WithField("path", rel).Info("Tracking file by operator request")
	return nil
}
