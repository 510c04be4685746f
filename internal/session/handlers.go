package session

import (
	"strconv"
	"strings"
	"time"

	"tidekv/internal/keyspace"
	"tidekv/internal/resp"
	"tidekv/internal/serverinfo"
)

// Handler executes one already-dequeued command against ks and writes its
// reply through w (without flushing — the session decides flush points).
type Handler func(ks *keyspace.Keyspace, info serverinfo.Info, args []string, w *resp.Writer) error

var handlers = map[string]Handler{
	"PING":    pingHandler,
	"COMMAND": commandHandler,
	"ECHO":    echoHandler,
	"SET":     setHandler,
	"GET":     getHandler,
	"INCR":    incrHandler,
	"DEL":     delHandler,
	"INFO":    infoHandler,
}

func wrongArity(name string) string {
	return "ERR wrong number of arguments for '" + name + "' command"
}

func pingHandler(_ *keyspace.Keyspace, _ serverinfo.Info, _ []string, w *resp.Writer) error {
	return w.WriteSimpleString("PONG")
}

// commandHandler stubs the capability-probe clients send at connect time;
// an empty array is sufficient since no client in this system's test
// matrix inspects the contents.
func commandHandler(_ *keyspace.Keyspace, _ serverinfo.Info, _ []string, w *resp.Writer) error {
	return w.WriteArrayHeader(0)
}

func echoHandler(_ *keyspace.Keyspace, _ serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) != 1 {
		return w.WriteError(wrongArity("echo"))
	}
	return w.WriteBulkString(args[0])
}

func setHandler(ks *keyspace.Keyspace, _ serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) < 2 {
		return w.WriteError(wrongArity("set"))
	}

	key, value := args[0], args[1]

	if len(args) == 2 {
		ks.Insert(key, keyspace.Record{Payload: value})
		return w.WriteSimpleString("OK")
	}

	// Any arity beyond the bare 2-arg form is only ever valid as
	// SET key value PX millis. Which error a malformed request gets depends
	// on args[2], not on the total argument count: an unrecognized option
	// name is "unknown option", while a recognized PX with a missing or
	// unparseable millisecond value is "invalid expire time".
	if strings.ToUpper(args[2]) != "PX" {
		return w.WriteError("ERR unknown option for 'set' command")
	}
	if len(args) != 4 {
		return w.WriteError("ERR invalid expire time")
	}
	millis, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return w.WriteError("ERR invalid expire time")
	}
	expiry := time.Now().Add(time.Duration(millis) * time.Millisecond)
	ks.Insert(key, keyspace.Record{Payload: value, Expiry: expiry})
	return w.WriteSimpleString("OK")
}

func getHandler(ks *keyspace.Keyspace, _ serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) != 1 {
		return w.WriteError(wrongArity("get"))
	}
	value, ok := ks.Get(args[0])
	if !ok {
		return w.WriteNullBulkString()
	}
	return w.WriteBulkString(value)
}

func incrHandler(ks *keyspace.Keyspace, _ serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) != 1 {
		return w.WriteError(wrongArity("incr"))
	}

	var (
		newValue int64
		notAnInt bool
	)
	ks.Mutate(args[0], func(rec keyspace.Record, exists bool) keyspace.MutateResult {
		if !exists {
			newValue = 1
			return keyspace.MutateResult{
				Action:    keyspace.Write,
				NewRecord: keyspace.Record{Payload: "1"},
			}
		}
		n, err := strconv.ParseInt(rec.Payload, 10, 64)
		if err != nil {
			notAnInt = true
			return keyspace.MutateResult{Action: keyspace.Unchanged}
		}
		newValue = n + 1
		return keyspace.MutateResult{
			Action: keyspace.Write,
			// Expiry carries over untouched: INCR must never clear a TTL
			// set by a prior SET ... PX.
			NewRecord: keyspace.Record{Payload: strconv.FormatInt(newValue, 10), Expiry: rec.Expiry},
		}
	})

	if notAnInt {
		return w.WriteError("ERR value is not an integer or out of range")
	}
	return w.WriteInteger(newValue)
}

func delHandler(ks *keyspace.Keyspace, _ serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) < 1 {
		return w.WriteError(wrongArity("del"))
	}
	var removed int64
	for _, key := range args {
		if ks.Delete(key) {
			removed++
		}
	}
	return w.WriteInteger(removed)
}

func infoHandler(_ *keyspace.Keyspace, info serverinfo.Info, args []string, w *resp.Writer) error {
	if len(args) != 1 {
		return w.WriteError(wrongArity("info"))
	}
	section := strings.ToLower(args[0])
	if section != "replication" {
		return w.WriteError("ERR unsupported INFO section")
	}
	body := "# Replication\r\n" +
		"role:" + string(info.Role) + "\r\n" +
		"master_repl_offset:" + strconv.FormatInt(info.Offset, 10) + "\r\n" +
		"master_replid:" + info.ID
	return w.WriteBulkString(body)
}
