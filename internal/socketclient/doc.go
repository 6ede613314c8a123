// Package socketclient is a small synchronous client for the chatd line
// protocol, used by `chatd client` and by tests.
//
// Replies carry no terminator, so Command treats a reply as complete once
// the server has been quiet for Config.ReplyIdle after the first line.
// Upload and Download know the exact shape of their exchanges and do not
// rely on that heuristic.
//
// Basic Usage
//
//	client, err := socketclient.Dial(ctx, "127.0.0.1:7002")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Login(ctx, "alice", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	reply, err := client.Command(ctx, "chat view 10")
package socketclient
