// Package qchat provides the Go client SDK for qchat, an end-to-end
// encrypted chat service with post-quantum key exchange.
//
// Every message and document is wrapped in a per-recipient encryption
// envelope: ML-KEM-768 encapsulation against the recipient's public key,
// HKDF-SHA-512 key derivation, and AES-256-GCM authenticated encryption.
// The server stores and fans out envelopes without ever being able to read
// them; secret keys never leave the client.
//
// Basic usage:
//
//	identity, err := qchat.NewIdentity()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := qchat.New("https://chat.example.com", identity)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Register(ctx, "alice", "correct horse battery"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Login(ctx, "alice", "correct horse battery"); err != nil {
//	    log.Fatal(err)
//	}
//
//	room, err := client.CreateRoom(ctx, "general")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := room.Send(ctx, "hello quantum world"); err != nil {
//	    log.Fatal(err)
//	}
//
// Compare fingerprints out of band before trusting a new contact:
//
//	fmt.Println(identity.Fingerprint())
package qchat
