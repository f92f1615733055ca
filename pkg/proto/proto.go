// Package proto implements the line-oriented wire protocol spoken between
// the tree-share server and its clients.
//
// A logical message is one command token on its own line, followed by a
// command-specific number of argument lines, optionally followed by a
// content block: raw text lines terminated by a line equal to
// TRANSMISSION_END. Because the terminator is an ordinary line, a content
// block cannot faithfully carry a payload line that is itself literally
// "TRANSMISSION_END" (or "FAIL", which marks a sender-side transfer abort).
// This is an accepted limitation of the wire format, as is the loss of
// line-ending fidelity on the final line of a file.
package proto

// Command is a protocol token. Unrecognized input decodes to None, which
// both sides treat as a fatal framing error for the connection.
type Command string

const (
	None                Command = "NONE"
	Authenticate        Command = "AUTHENTICATE"
	Register            Command = "REGISTER"
	Success             Command = "SUCCESS"
	Fail                Command = "FAIL"
	FileCreated         Command = "FILE_CREATED"
	FileChanged         Command = "FILE_CHANGED"
	FileDeleted         Command = "FILE_DELETED"
	TransmissionEnd     Command = "TRANSMISSION_END"
	RequestFileContents Command = "REQUEST_FILE_CONTENTS"
	RequestInitialInfo  Command = "REQUEST_INITIAL_INFO"
	NewConnection       Command = "NEW_CONNECTION"
)

var commands = map[string]Command{
	string(Authenticate):        Authenticate,
	string(Register):            Register,
	string(Success):             Success,
	string(Fail):                Fail,
	string(FileCreated):         FileCreated,
	string(FileChanged):         FileChanged,
	string(FileDeleted):         FileDeleted,
	string(TransmissionEnd):     TransmissionEnd,
	string(RequestFileContents): RequestFileContents,
	string(RequestInitialInfo):  RequestInitialInfo,
	string(NewConnection):       NewConnection,
}

// ParseCommand decodes a line into a Command. Anything outside the closed
// token set (including the literal "NONE") decodes to None.
func ParseCommand(line string) Command {
	if cmd, ok := commands[line]; ok {
		return cmd
	}
	return None
}
