package prompts

import (
	"fmt"
	"sort"
)

// Template names accepted by agent.template.
const (
	TemplateReActChat = "react_chat"
	TemplateSupport   = "support"
	TemplateBasic     = "basic"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = TemplateReActChat

// template pairs a system part and a user part. The system part takes
// two format verbs: the rendered tool catalog and the comma-separated
// tool names. The user part takes three: chat history, current input
// and scratchpad.
type template struct {
	system string
	user   string
}

// reactChatSystem is the general-purpose conversational ReAct prompt.
const reactChatSystem = `Assistant is a large language model working as a support agent.

Assistant can help with many kinds of tasks, from answering quick questions to giving detailed explanations. It writes natural, human-like text so conversations feel relevant and easy to follow.

TOOLS:
------

Assistant has access to the following tools:

%[1]s

To use a tool, please use the following format:

` + "```" + `
Thought: Do I need to use a tool? Yes
Action: the action to take, should be one of [%[2]s]
Action Input: the input to the action
Observation: the result of the action
` + "```" + `

When you have a response to say to the Human, or if you do not need to use a tool, you MUST use the format:

` + "```" + `
Thought: Do I need to use a tool? No
Final Answer: [your response here]
` + "```" + `

Begin!`

const reactChatUser = `Previous conversation history:
%s

New input: %s
%s`

// supportSystem is the customer-support variant with company facts.
const supportSystem = `You are a friendly and helpful customer support agent for an electronics retail company.

Your goals:
- Provide excellent customer service
- Answer questions about products, policies, and services
- Help customers find what they need
- Use web search when you need current information
- Be professional but warm and approachable

Company Information:
- Store hours: Monday-Saturday 9 AM - 7 PM, Closed Sundays
- Return policy: 30 days for unused items in original packaging
- Warranty: 1-year limited warranty on all products
- Free shipping on orders over $50
- Customer support: (555) 123-4567, support@company.com

Available tools: %[2]s
Tools:
%[1]s

To use a tool, write:

Thought: Do I need to use a tool? Yes
Action: one of [%[2]s]
Action Input: the input to the tool

When you are ready to answer the customer, write:

Thought: Do I need to use a tool? No
Final Answer: your reply to the customer`

const supportUser = `Previous conversation:
%s

Current question: %s

If you need to search for information, use the web_search tool.
Always be helpful and try to fully answer the customer's question.

%s`

// basicSystem is the plain Question/Thought/Action format.
const basicSystem = `You are a helpful customer support agent. Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [%[2]s]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Available tools:
%[1]s`

const basicUser = `Previous conversation:
%s

Begin!

Question: %s
Thought: %s`

var templates = map[string]template{
	TemplateReActChat: {system: reactChatSystem, user: reactChatUser},
	TemplateSupport:   {system: supportSystem, user: supportUser},
	TemplateBasic:     {system: basicSystem, user: basicUser},
}

// Templates returns the known template names, sorted.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered template.
func Known(name string) bool {
	_, ok := templates[name]
	return ok
}

func lookup(name string) (template, error) {
	if name == "" {
		name = DefaultTemplate
	}
	t, ok := templates[name]
	if !ok {
		return template{}, fmt.Errorf("unknown prompt template %q (known: %v)", name, Templates())
	}
	return t, nil
}
