package mcpserver

// StepsFormatContract describes the plain-text step notation that LLM
// consumers must use when creating or updating projects.
const StepsFormatContract = `# Statusboard Step Notation

Project steps are written one per line. Indentation is ignored; only the
leading marker decides the level.

## Structure

` + "```" + `text
Parent task                 # no marker: a top-level task
+ Subtask                   # "+": child of the latest parent task
++ Sub-subtask              # "++": child of the latest subtask
` + "```" + `

## Rules

1. **Three levels only.** Deeper markers ("+++") are read as "++" followed by text starting with "+".
2. **Orphans are dropped.** A "+" line before any parent task, or a "++" line
   before any subtask, is silently discarded.
3. **Blank lines are ignored** and do not reset the current parent or subtask.
4. **Marker without text is ignored.** "+" or "++" alone on a line adds nothing.
5. **Completion is kept on edit** for steps whose text is unchanged. Renaming
   a step resets its completion.

## Completion rules

- A task with subtasks can only be completed once every subtask and
  sub-subtask is completed.
- A subtask with sub-subtasks can only be completed once every
  sub-subtask is completed.
- No step can be completed while the project has unmet dependencies.
- Un-completing a step is always allowed.

## Dependencies

- ` + "`" + `project:<projectId>` + "`" + ` is met when that project's status is completed,
  whether it is active or archived.
- ` + "`" + `task:<projectId>:<stepId>` + "`" + ` is met when that step is completed.
- A reference that cannot be resolved counts as unmet.

## Example

` + "```" + `text
Prepare launch
+ Write announcement
++ Draft
++ Review
+ Schedule posts
Ship release
` + "```" + `
`
