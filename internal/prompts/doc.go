// Package prompts builds the model input for each reasoning step.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and can be validated by tests.
// Operators pick a template by name in config.yaml (agent.template); the
// wording itself lives here.
//
// Every template teaches the same ReAct protocol the action parser reads:
// "Action:" and "Action Input:" lines to call a tool, "Final Answer:" to
// reply. A template is split into a system part (instructions and tool
// catalog) and a user part (history, current input and scratchpad) so
// providers with a separate system channel can use it.
package prompts
