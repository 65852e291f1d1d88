// Package aiflow orchestrates streamed conversations between an application
// and an OpenAI-compatible model whose responses may invoke application
// defined tools mid-stream.
//
// The engine composes three pieces around a Session: a decoder that
// reassembles provider deltas into assistant text and complete tool calls, a
// dispatcher that executes registered tools concurrently and feeds their
// results (success or failure) back into the transcript, and a turn loop
// that keeps asking the model until it stops calling tools. The caller
// consumes it all as one lazy event sequence from ResponsesStream.
//
// Tools are declared once at setup:
//
//	type WeatherArgs struct {
//		Location string `json:"location" jsonschema:"required"`
//	}
//
//	tools := tool.NewSet()
//	err := tools.Add(tool.Must(func(args tool.Args[WeatherArgs]) string {
//		return "sunny in " + args.Value.Location
//	}, tool.Name("current_weather")))
//
// and a conversation is a pull loop:
//
//	session := aiflow.NewSession(messages.New().UserPrompt("weather in Paris?"))
//	for event, err := range aiflow.ResponsesStream(ctx, session, prov, tools, &aiflow.GenerateConfig{Model: aiflow.GPT41Mini}) {
//		if err != nil {
//			return err
//		}
//		// render event
//	}
//
// Tools without an executor ("client tools") are yielded as pending calls;
// the application resolves them by appending a tool result to the session
// before starting the next stream.
package aiflow
