//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"
)

func main() {
	fmt.Println("Go main() function starting...")

	js.Global().Set("handle", js.FuncOf(handleFunc))

	fmt.Println("Go WASM module loaded and ready")

	select {}
}

// handleFunc is the WASM-exported entry point, handle(request, env) ->
// response: it accepts the host's Request and env objects and returns a
// Promise resolving to a Response.
func handleFunc(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.Global().Get("Promise").Call("reject", js.ValueOf("expected 2 arguments: request, env"))
	}

	request := args[0]
	environment := args[1]

	return js.Global().Get("Promise").New(js.FuncOf(func(this js.Value, promiseArgs []js.Value) interface{} {
		resolve := promiseArgs[0]
		reject := promiseArgs[1]

		go func() {
			defer func() {
				if r := recover(); r != nil {
					reject.Invoke(js.ValueOf(fmt.Sprintf("panic: %v", r)))
				}
			}()

			response, err := handleRequest(request, environment)
			if err != nil {
				reject.Invoke(js.ValueOf(err.Error()))
				return
			}
			resolve.Invoke(response)
		}()

		return nil
	}))
}
