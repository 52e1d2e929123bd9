// voicelab - Voice Agent Prompt Injection Challenge Server
package main

import "github.com/ashureev/voicelab/internal/cli"

func main() {
	cli.Execute()
}
