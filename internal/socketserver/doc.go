// Package socketserver implements the line-oriented TCP protocol of chatd.
//
// # Architecture
//
//   - Server: binds the TCP listener, accepts connections and tracks them
//   - Client: drives one connection, reading lines and upload payloads
//   - Session: the per-connection protocol state machine
//
// Session never touches the socket. It consumes one line at a time through
// Handle and answers with a Reply, which tells the driving Client what to
// write and whether to close the connection or read an upload payload next.
// Shared data lives in a *state.State; every command is one critical
// section there.
//
// # Wire format
//
// Requests and replies are UTF-8 lines terminated by "\n"; a trailing "\r"
// on a request is ignored. Blank lines in command mode produce no reply.
// On accept the server writes:
//
//	Welcome! Type 'help' for commands
//
// followed by an empty line. Status lines start with "[OK]" or "[ERR]";
// listings are framed between separator lines of 60 '=' characters.
//
// # Modes
//
//	UNAUTHENTICATED --login--> AUTHENTICATED --logout--> UNAUTHENTICATED
//	AUTHENTICATED --chat send | task add-desc | task add-sol--> AWAITING_MULTILINE
//	AUTHENTICATED --upload--> AWAITING_UPLOAD
//	any --quit | exit | disconnect--> CLOSED
//
// A multi-line body ends with a line consisting of exactly "END". An upload
// asks for a filename, then a size in bytes, then reads exactly the base64
// length of that size under a deadline. Downloads answer with a status line
// followed by one base64 line.
//
// # Usage
//
//	srv := socketserver.NewServer(socketserver.Options{ListenAddr: ":5555"}, st, ai)
//	if err := srv.Serve(ctx); err != nil {
//		log.Fatal(err)
//	}
package socketserver
